package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistryGetReturnsSameInstance(t *testing.T) {
	reg := NewRegistry[todo, query]()
	cfg := Config[todo, query]{ID: "shared", SyncDebounce: time.Hour, IDOf: idOfTodo}

	a := reg.Get(cfg)
	b := reg.Get(cfg)
	assert.Same(t, a, b)
}

func TestRegistryGetIgnoresConfigChangesAfterFirstConstruction(t *testing.T) {
	reg := NewRegistry[todo, query]()
	first := reg.Get(Config[todo, query]{ID: "x", InitialContext: query{Scope: "a"}, SyncDebounce: time.Hour, IDOf: idOfTodo})
	second := reg.Get(Config[todo, query]{ID: "x", InitialContext: query{Scope: "b"}, SyncDebounce: time.Hour, IDOf: idOfTodo})

	assert.Same(t, first, second)
	assert.Equal(t, "a", second.GetState().Context.Scope)
}

func TestRegistryClearRemovesEntry(t *testing.T) {
	reg := NewRegistry[todo, query]()
	cfg := Config[todo, query]{ID: "y", SyncDebounce: time.Hour, IDOf: idOfTodo}
	first := reg.Get(cfg)
	reg.Clear("y")
	second := reg.Get(cfg)
	assert.NotSame(t, first, second)
}

func TestRegistryClearAllEmptiesRegistry(t *testing.T) {
	reg := NewRegistry[todo, query]()
	reg.Get(Config[todo, query]{ID: "a", SyncDebounce: time.Hour, IDOf: idOfTodo})
	reg.Get(Config[todo, query]{ID: "b", SyncDebounce: time.Hour, IDOf: idOfTodo})
	reg.ClearAll()

	freshA := reg.Get(Config[todo, query]{ID: "a", SyncDebounce: time.Hour, IDOf: idOfTodo})
	assert.Equal(t, "a", freshA.id)
}

func TestDefaultRegistryIsProcessWideSingleton(t *testing.T) {
	r1 := DefaultRegistry[todo, query]()
	r2 := DefaultRegistry[todo, query]()
	assert.Same(t, r1, r2)
}
