package model

import "encoding/json"

// URLSet is an insertion-ordered set of URLs.
// The zero value is an empty set ready to use.
//
// Design decision: We keep insertion order next to the membership map so
// that iteration (and therefore download scheduling, sitemap output and
// test expectations) is deterministic for a given crawl order.
type URLSet struct {
	index map[string]struct{}
	items []string
}

// NewURLSet returns a set holding urls in the given order.
func NewURLSet(urls ...string) *URLSet {
	s := &URLSet{}
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts u and reports whether it was not present before.
// Empty strings are ignored.
func (s *URLSet) Add(u string) bool {
	if u == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[u]; ok {
		return false
	}
	s.index[u] = struct{}{}
	s.items = append(s.items, u)
	return true
}

// Has reports whether u is in the set.
func (s *URLSet) Has(u string) bool {
	_, ok := s.index[u]
	return ok
}

// Len returns the number of URLs in the set.
func (s *URLSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the URLs in insertion order.
func (s *URLSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Merge adds every URL of other.
func (s *URLSet) Merge(other *URLSet) {
	if other == nil {
		return
	}
	for _, u := range other.items {
		s.Add(u)
	}
}

// MarshalJSON encodes the set as a JSON array.
func (s *URLSet) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}
