package snapshot

import (
	"strconv"
	"strings"
	"sync"
)

// Binding ties a CSV heading to a field of T.
type Binding[T any] struct {
	Heading string
	Field   string
	Set     func(rec *T, value string)
}

// HeadingCache memoizes heading→column-index tables per distinct header.
// Keys are value-equal encodings of the header, prefixed with the mapper's
// signature, so one cache can be shared by several mappers.
type HeadingCache struct {
	mu     sync.RWMutex
	tables map[string][]int
}

// NewHeadingCache creates an empty cache.
func NewHeadingCache() *HeadingCache {
	return &HeadingCache{tables: make(map[string][]int)}
}

// Lookup returns the cached index table for key.
func (c *HeadingCache) Lookup(key string) ([]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.tables[key]
	return idx, ok
}

// StoreIfAbsent caches idx under key unless another table is already
// present, and returns the table that ended up cached.
func (c *HeadingCache) StoreIfAbsent(key string, idx []int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.tables[key]; ok {
		return existing
	}
	c.tables[key] = idx
	return idx
}

// Len returns the number of cached tables.
func (c *HeadingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// RowMapper assigns positional row values onto the declared fields of T.
type RowMapper[T any] struct {
	bindings  []Binding[T]
	signature string
	cache     *HeadingCache
}

// NewRowMapper creates a mapper for bindings. A nil cache gives the mapper
// a private one.
func NewRowMapper[T any](bindings []Binding[T], cache *HeadingCache) *RowMapper[T] {
	if cache == nil {
		cache = NewHeadingCache()
	}
	headings := make([]string, len(bindings))
	for i, b := range bindings {
		headings[i] = b.Heading
	}
	return &RowMapper[T]{
		bindings:  bindings,
		signature: encodeTuple(headings),
		cache:     cache,
	}
}

// Headings returns the declared headings in binding order.
func (m *RowMapper[T]) Headings() []string {
	out := make([]string, len(m.bindings))
	for i, b := range m.bindings {
		out[i] = b.Heading
	}
	return out
}

// Map builds a T from values laid out according to header. Values missing
// at the end of a short row map to "".
func (m *RowMapper[T]) Map(header, values []string) (T, error) {
	var rec T

	idx, err := m.indexes(header)
	if err != nil {
		return rec, err
	}

	for i, b := range m.bindings {
		v := ""
		if idx[i] < len(values) {
			v = values[idx[i]]
		}
		b.Set(&rec, v)
	}
	return rec, nil
}

// indexes resolves each binding's column, computing the table at most once
// per distinct header.
func (m *RowMapper[T]) indexes(header []string) ([]int, error) {
	key := m.signature + "|" + encodeTuple(header)
	if idx, ok := m.cache.Lookup(key); ok {
		return idx, nil
	}

	pos := make(map[string]int, len(header))
	for i := len(header) - 1; i >= 0; i-- {
		pos[header[i]] = i
	}

	idx := make([]int, len(m.bindings))
	for i, b := range m.bindings {
		col, ok := pos[b.Heading]
		if !ok {
			return nil, &HeadingError{Heading: b.Heading}
		}
		idx[i] = col
	}
	return m.cache.StoreIfAbsent(key, idx), nil
}

// encodeTuple length-prefixes each element so distinct tuples never share
// an encoding.
func encodeTuple(items []string) string {
	var sb strings.Builder
	for _, s := range items {
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteByte(':')
		sb.WriteString(s)
	}
	return sb.String()
}
