package domain

import (
	"slices"
	"time"
)

// sample is the behavior a series needs from its elements.
type sample[S any] interface {
	Timestamp() time.Time
	Equivalent(S) bool
	withID(int64) S
}

// series is a time-ordered set of samples keyed by UnixNano of their
// timestamp. keys is kept sorted ascending and mirrors items.
type series[S sample[S]] struct {
	kind  string
	keys  []int64
	items map[int64]S
}

func newSeries[S sample[S]](kind string) series[S] {
	return series[S]{kind: kind, items: make(map[int64]S)}
}

func (s *series[S]) init() {
	if s.items == nil {
		s.items = make(map[int64]S)
	}
}

func (s *series[S]) len() int {
	return len(s.keys)
}

// insert adds smp unless it is redundant with a chronological neighbor.
// It returns true when smp was stored.
func (s *series[S]) insert(smp S) (bool, error) {
	s.init()
	key := NormalizeTime(smp.Timestamp()).UnixNano()
	idx, found := slices.BinarySearch(s.keys, key)

	if found {
		if !s.items[key].Equivalent(smp) {
			return false, &TimestampConflictError{Kind: s.kind, SavedAt: NormalizeTime(smp.Timestamp())}
		}
		return false, nil
	}

	prevEqual := idx > 0 && s.items[s.keys[idx-1]].Equivalent(smp)
	nextEqual := idx < len(s.keys) && s.items[s.keys[idx]].Equivalent(smp)
	if prevEqual || nextEqual {
		return false, nil
	}

	s.keys = slices.Insert(s.keys, idx, key)
	s.items[key] = smp
	return true, nil
}

// place stores smp without compaction. Used when loading trusted history.
func (s *series[S]) place(smp S) error {
	s.init()
	key := NormalizeTime(smp.Timestamp()).UnixNano()
	idx, found := slices.BinarySearch(s.keys, key)
	if found {
		if s.items[key].Equivalent(smp) {
			return nil
		}
		return &TimestampConflictError{Kind: s.kind, SavedAt: NormalizeTime(smp.Timestamp())}
	}
	s.keys = slices.Insert(s.keys, idx, key)
	s.items[key] = smp
	return nil
}

func (s *series[S]) assignID(at time.Time, id int64) bool {
	key := NormalizeTime(at).UnixNano()
	smp, ok := s.items[key]
	if !ok {
		return false
	}
	s.items[key] = smp.withID(id)
	return true
}

func (s *series[S]) get(at time.Time) (S, bool) {
	smp, ok := s.items[NormalizeTime(at).UnixNano()]
	return smp, ok
}

// values returns the samples in ascending time order.
func (s *series[S]) values() []S {
	out := make([]S, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.items[k])
	}
	return out
}

func (s *series[S]) last() (time.Time, bool) {
	if len(s.keys) == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, s.keys[len(s.keys)-1]).UTC(), true
}

func (s *series[S]) clone() series[S] {
	items := make(map[int64]S, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	return series[S]{kind: s.kind, keys: slices.Clone(s.keys), items: items}
}
