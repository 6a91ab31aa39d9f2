package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := newOrderedMap[int]()
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)

	assert.Equal(t, []int{2, 1, 3}, m.Values())
}

func TestOrderedMapSetExistingKeepsPosition(t *testing.T) {
	m := newOrderedMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 99)

	assert.Equal(t, []int{99, 2}, m.Values())
}

func TestOrderedMapDelete(t *testing.T) {
	m := newOrderedMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Delete("a")

	assert.Equal(t, []int{2}, m.Values())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestOrderedMapReplace(t *testing.T) {
	m := newOrderedMap[int]()
	m.Set("stale", 1)
	m.Replace([]int{10, 20}, func(v int) string {
		if v == 10 {
			return "a"
		}
		return "b"
	})

	assert.Equal(t, []int{10, 20}, m.Values())
	_, ok := m.Get("stale")
	assert.False(t, ok)
}

func TestOrderedMapCloneIsIndependent(t *testing.T) {
	m := newOrderedMap[int]()
	m.Set("a", 1)
	clone := m.Clone()
	clone.Set("b", 2)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, clone.Len())
}
