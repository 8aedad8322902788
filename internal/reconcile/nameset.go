// Package reconcile computes the work queues of the sync stages by diffing
// sets of object names.
package reconcile

import "sort"

// NameSet is an unordered set of file or object names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names; duplicates collapse.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s NameSet) Add(name string) {
	s[name] = struct{}{}
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s NameSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order. Used for stable logs and
// processing order; set semantics do not depend on it.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
