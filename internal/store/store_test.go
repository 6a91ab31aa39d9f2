package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	s := New[string](nil)
	s.Put("home", "1", "alpha")

	v, ok := s.Get("home", "1")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)
}

func TestGetMissingScope(t *testing.T) {
	s := New[string](nil)
	_, ok := s.Get("missing", "1")
	assert.False(t, ok)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	s := New[string](nil)
	s.Put("home", "1", "a")
	s.Put("home", "2", "b")
	s.Put("home", "3", "c")

	assert.Equal(t, []string{"a", "b", "c"}, s.List("home"))
}

func TestDeleteRemovesFromOrderAndBucket(t *testing.T) {
	s := New[string](nil)
	s.Put("home", "1", "a")
	s.Put("home", "2", "b")

	require.NoError(t, s.Delete("home", "1"))
	assert.Equal(t, []string{"b"}, s.List("home"))
	_, ok := s.Get("home", "1")
	assert.False(t, ok)
}

func TestScopesAreIndependent(t *testing.T) {
	s := New[string](nil)
	s.Put("home", "1", "a")
	s.Put("work", "1", "b")

	home, _ := s.Get("home", "1")
	work, _ := s.Get("work", "1")
	assert.Equal(t, "a", home)
	assert.Equal(t, "b", work)
}

func TestPutEvictsOldestAtCapacity(t *testing.T) {
	s := New[int](nil)
	s.capacity = 2
	s.Put("home", "1", 1)
	s.Put("home", "2", 2)
	s.Put("home", "3", 3)

	assert.Equal(t, []int{2, 3}, s.List("home"))
	_, ok := s.Get("home", "1")
	assert.False(t, ok)
}
