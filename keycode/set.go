package keycode

import "slices"

// Set is an unordered set of codes.
type Set map[Code]struct{}

// NewSet returns a set containing codes.
func NewSet(codes ...Code) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Add(codes ...Code) {
	for _, c := range codes {
		s[c] = struct{}{}
	}
}

func (s Set) Remove(c Code) { delete(s, c) }
func (s Set) Has(c Code) bool {
	_, ok := s[c]
	return ok
}
func (s Set) Len() int { return len(s) }

// HasAll reports whether every code is in the set.
func (s Set) HasAll(codes []Code) bool {
	for _, c := range codes {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// Union adds every code of other to s.
func (s Set) Union(other Set) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the codes in ascending order.
func (s Set) Sorted() []Code {
	out := make([]Code, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
