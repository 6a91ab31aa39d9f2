package main

import "time"

// Note mirrors cmd/collectiond's record shape so collectionctl can decode
// server responses without a shared package.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteQuery is the fetch query collectionctl sends; empty like the server's.
type NoteQuery struct{}
