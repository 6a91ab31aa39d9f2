package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

func TestHTTPHandlerAcceptsKeyedSyncResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"syncResults": {"a": {"status": "success"}}}`))
	}))
	defer server.Close()

	handler := httpHandler(server.Client(), server.URL)
	resp, err := handler(context.Background(), transport.Request[Note, NoteQuery]{})
	require.NoError(t, err)
	assert.Equal(t, transport.SyncResult{Status: "success"}, resp.SyncResults["a"])
}

func TestHTTPHandlerAcceptsLegacyArraySyncResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"syncResults": [{"id": "a", "status": "error", "error": "boom"}]}`))
	}))
	defer server.Close()

	handler := httpHandler(server.Client(), server.URL)
	resp, err := handler(context.Background(), transport.Request[Note, NoteQuery]{})
	require.NoError(t, err)
	assert.Equal(t, transport.SyncResult{Status: "error", Error: "boom"}, resp.SyncResults["a"])
}
