package bounty

import "slices"

// entry is one key/value pair of an orderedMap.
type entry[V any] struct {
	Key   Identity
	Value V
}

// orderedMap is a key-unique associative container that iterates in
// ascending key order, so encodings of equal records are byte-identical.
type orderedMap[V any] struct {
	entries []entry[V]
}

func (m *orderedMap[V]) search(key Identity) (int, bool) {
	return slices.BinarySearchFunc(m.entries, key, func(e entry[V], k Identity) int {
		return e.Key.Compare(k)
	})
}

// Get returns the value stored under key.
func (m *orderedMap[V]) Get(key Identity) (V, bool) {
	if i, ok := m.search(key); ok {
		return m.entries[i].Value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present.
func (m *orderedMap[V]) Contains(key Identity) bool {
	_, ok := m.search(key)
	return ok
}

// Put inserts or overwrites key and reports whether it replaced a value.
func (m *orderedMap[V]) Put(key Identity, value V) bool {
	i, ok := m.search(key)
	if ok {
		m.entries[i].Value = value
		return true
	}
	m.entries = slices.Insert(m.entries, i, entry[V]{Key: key, Value: value})
	return false
}

// Len returns the number of keys.
func (m *orderedMap[V]) Len() int { return len(m.entries) }

// Keys returns the keys in ascending order.
func (m *orderedMap[V]) Keys() []Identity {
	keys := make([]Identity, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Each visits entries in key order until fn returns false.
func (m *orderedMap[V]) Each(fn func(Identity, V) bool) {
	for _, e := range m.entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

func (m orderedMap[V]) clone() orderedMap[V] {
	return orderedMap[V]{entries: slices.Clone(m.entries)}
}

// Submissions maps each submitter to its candidate payload.
type Submissions struct{ orderedMap[string] }

// Votes maps each voter to the candidate it voted for.
type Votes struct{ orderedMap[Identity] }
