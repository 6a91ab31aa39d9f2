package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/collectionengine/internal/store"
	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

type todo struct {
	ID   string
	Text string
}

type query struct {
	Scope string
}

func newTestDispatcher(t *testing.T) (*Dispatcher[todo, query], *store.Store[todo]) {
	t.Helper()
	s := store.New[todo](nil)
	d := &Dispatcher[todo, query]{
		Fetch: func(ctx context.Context, scope string, q *query) ([]todo, error) {
			return s.List(scope), nil
		},
		Create: func(ctx context.Context, scope string, data todo) (todo, error) {
			s.Put(scope, data.ID, data)
			return data, nil
		},
		Update: func(ctx context.Context, scope string, id string, data todo) (todo, error) {
			s.Put(scope, id, data)
			return data, nil
		},
		Remove: func(ctx context.Context, scope string, id string) error {
			return s.Delete(scope, id)
		},
	}
	return d, s
}

func TestDispatcherHandlesFetch(t *testing.T) {
	d, s := newTestDispatcher(t)
	s.Put("home", "1", todo{ID: "1", Text: "a"})

	scope := "home"
	resp, err := d.Handler()(context.Background(), transport.Request[todo, query]{Scope: &scope, Query: &query{}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].Text)
}

func TestDispatcherHandlesCreateUpdateRemove(t *testing.T) {
	d, s := newTestDispatcher(t)
	scope := "home"

	resp, err := d.Handler()(context.Background(), transport.Request[todo, query]{
		Scope: &scope,
		Changes: []syncqueue.Change[todo]{
			{ID: "1", Type: syncqueue.Create, Data: todo{ID: "1", Text: "new"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.SyncResults["1"].Status)

	v, ok := s.Get("home", "1")
	require.True(t, ok)
	assert.Equal(t, "new", v.Text)

	_, err = d.Handler()(context.Background(), transport.Request[todo, query]{
		Scope: &scope,
		Changes: []syncqueue.Change[todo]{
			{ID: "1", Type: syncqueue.Remove, Data: todo{ID: "1"}},
		},
	})
	require.NoError(t, err)
	_, ok = s.Get("home", "1")
	assert.False(t, ok)
}

func TestDispatcherPerIDErrorDoesNotAbortBatch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Update = func(ctx context.Context, scope, id string, data todo) (todo, error) {
		return todo{}, errors.New("conflict")
	}
	scope := "home"

	resp, err := d.Handler()(context.Background(), transport.Request[todo, query]{
		Scope: &scope,
		Changes: []syncqueue.Change[todo]{
			{ID: "1", Type: syncqueue.Update, Data: todo{ID: "1", Text: "x"}},
			{ID: "2", Type: syncqueue.Create, Data: todo{ID: "2", Text: "y"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.SyncResults["1"].Status)
	assert.Equal(t, "conflict", resp.SyncResults["1"].Error)
	assert.Equal(t, "success", resp.SyncResults["2"].Status)
}

func TestDispatcherRecoversPanickingCallback(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Create = func(ctx context.Context, scope string, data todo) (todo, error) {
		panic("boom")
	}
	scope := "home"

	resp, err := d.Handler()(context.Background(), transport.Request[todo, query]{
		Scope: &scope,
		Changes: []syncqueue.Change[todo]{
			{ID: "1", Type: syncqueue.Create, Data: todo{ID: "1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.SyncResults["1"].Status)
	assert.Contains(t, resp.SyncResults["1"].Error, "panic")
}
