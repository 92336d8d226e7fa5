package blocklist

import "github.com/haukened/rr-spam/internal/spam/common/utils"

// Set is an immutable in-memory spam domain set with exact membership semantics.
// It is what a caller builds when it supplies its own domains for one check.
type Set struct {
	names map[string]struct{}
}

// NewSet canonicalizes the given domains into a Set. Empty names are ignored.
func NewSet(domains ...string) *Set {
	s := &Set{names: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if cn := utils.CanonicalDNSName(d); cn != "" {
			s.names[cn] = struct{}{}
		}
	}
	return s
}

// Contains reports whether name, after canonicalization, is in the set.
func (s *Set) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[utils.CanonicalDNSName(name)]
	return ok
}

// Len returns the number of distinct domains.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
