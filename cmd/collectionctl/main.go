// Command collectionctl is a demo CLI client driving a pkg/collection
// instance against a running cmd/collectiond server: create/update/remove
// apply optimistically and sync in the background, watch streams snapshots.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/collectionengine/pkg/collection"
)

func main() {
	var serverURL string

	root := &cobra.Command{
		Use:   "collectionctl",
		Short: "Drive a notes collection against a running collectiond server",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080/api/notes", "collectiond endpoint")

	root.AddCommand(
		createCommand(&serverURL),
		updateCommand(&serverURL),
		removeCommand(&serverURL),
		watchCommand(&serverURL),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCollection(serverURL string) *collection.Collection[Note, NoteQuery] {
	return collection.New(collection.Config[Note, NoteQuery]{
		ID:           "collectionctl",
		SyncDebounce: 100 * time.Millisecond,
		IDOf:         func(n Note) string { return n.ID },
		Handler:      httpHandler(&http.Client{Timeout: 10 * time.Second}, serverURL),
	})
}

func createCommand(serverURL *string) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		RunE: func(cmd *cobra.Command, args []string) error {
			col := newCollection(*serverURL)
			id, err := col.Create(Note{Text: text})
			if err != nil {
				return err
			}
			waitIdle(col, id)
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "note text")
	return cmd
}

func updateCommand(serverURL *string) *cobra.Command {
	var id, text string
	var done bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a note's text and done flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			col := newCollection(*serverURL)
			if err := col.Refresh(cmd.Context()); err != nil {
				return err
			}
			err := col.Update(id, func(n *Note) {
				n.Text = text
				n.Done = done
			})
			if err != nil {
				return err
			}
			waitIdle(col, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "note id")
	cmd.Flags().StringVar(&text, "text", "", "new text")
	cmd.Flags().BoolVar(&done, "done", false, "mark done")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func removeCommand(serverURL *string) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a note",
		RunE: func(cmd *cobra.Command, args []string) error {
			col := newCollection(*serverURL)
			if err := col.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := col.Remove(id); err != nil {
				return err
			}
			waitIdle(col, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "note id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func watchCommand(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print every state snapshot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			col := newCollection(*serverURL)
			unsubscribe := col.Subscribe(func(s collection.State[Note, NoteQuery]) {
				out, _ := json.Marshal(s)
				fmt.Println(string(out))
			})
			defer unsubscribe()

			if err := col.Refresh(cmd.Context()); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit
			return nil
		},
	}
}

// waitIdle blocks briefly so create/update/remove have a chance to sync
// before the process exits; collectionctl is a one-shot CLI, not a daemon.
func waitIdle(col *collection.Collection[Note, NoteQuery], id string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if col.GetItemStatus(id) == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
