package permission

import "sort"

// Set is an unordered collection of permission codes. A code "resource:*" grants every
// action on resource.
type Set map[string]struct{}

// NewSet builds a Set from codes.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is granted directly or through a resource wildcard.
func (s Set) Has(code string) bool {
	if _, ok := s[code]; ok {
		return true
	}
	resource, _, err := Parse(code)
	if err != nil {
		return false
	}
	_, ok := s[resource+":*"]
	return ok
}

// Add inserts codes.
func (s Set) Add(codes ...string) {
	for _, c := range codes {
		s[c] = struct{}{}
	}
}

// Union returns a new Set holding the codes of every input.
func Union(sets ...Set) Set {
	out := make(Set)
	for _, s := range sets {
		for c := range s {
			out[c] = struct{}{}
		}
	}
	return out
}

// Codes returns the codes in sorted order.
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
