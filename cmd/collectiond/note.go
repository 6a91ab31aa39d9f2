package main

import "time"

// Note is the demo record type cmd/collectiond serves: a minimal todo-style
// item, enough to exercise Create/Update/Remove/Fetch end to end.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteQuery is the fetch query for the notes collection. Empty because the
// demo has nothing to filter on beyond scope.
type NoteQuery struct{}
