package collection

// orderedMap is a minimal insertion-ordered map: Collection's items snapshot
// must preserve server/local insertion order (spec requirement), which a
// plain Go map cannot do.
type orderedMap[T any] struct {
	order []string
	data  map[string]T
}

func newOrderedMap[T any]() *orderedMap[T] {
	return &orderedMap[T]{data: make(map[string]T)}
}

func (m *orderedMap[T]) Get(id string) (T, bool) {
	v, ok := m.data[id]
	return v, ok
}

func (m *orderedMap[T]) Set(id string, v T) {
	if _, exists := m.data[id]; !exists {
		m.order = append(m.order, id)
	}
	m.data[id] = v
}

func (m *orderedMap[T]) Delete(id string) {
	if _, exists := m.data[id]; !exists {
		return
	}
	delete(m.data, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Replace discards all entries and repopulates from items in order, keyed
// by idOf. Used when an authoritative fetch result replaces the collection.
func (m *orderedMap[T]) Replace(items []T, idOf func(T) string) {
	m.order = m.order[:0]
	m.data = make(map[string]T, len(items))
	for _, item := range items {
		id := idOf(item)
		m.order = append(m.order, id)
		m.data[id] = item
	}
}

// Values returns a new slice of values in insertion order — a structurally
// new object per snapshot, so reference-equality consumers see a change.
func (m *orderedMap[T]) Values() []T {
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.data[id])
	}
	return out
}

// Clone returns a shallow copy sharing no backing storage with m.
func (m *orderedMap[T]) Clone() *orderedMap[T] {
	c := &orderedMap[T]{
		order: append([]string(nil), m.order...),
		data:  make(map[string]T, len(m.data)),
	}
	for k, v := range m.data {
		c.data[k] = v
	}
	return c
}

func (m *orderedMap[T]) Len() int {
	return len(m.order)
}
