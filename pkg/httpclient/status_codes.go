package httpclient

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// codeRange is an inclusive range of HTTP status codes.
type codeRange struct {
	min int
	max int
}

// StatusCodeSet is a set of HTTP status codes, expressed as individual
// codes and inclusive ranges.
//
// The textual form accepted by ParseStatusCodes:
//   - "200" - single code
//   - "200,404" - multiple codes
//   - "200-299" - range (inclusive)
//   - "200-299,404" - mixed
type StatusCodeSet struct {
	codes  map[int]struct{}
	ranges []codeRange
}

// NewStatusCodeSet creates an empty StatusCodeSet.
func NewStatusCodeSet() *StatusCodeSet {
	return &StatusCodeSet{codes: make(map[int]struct{})}
}

// ParseStatusCodes parses a string like "200-299,404" into a
// StatusCodeSet. An empty or all-whitespace input yields nil, which
// callers treat as "use the default".
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	set := NewStatusCodeSet()

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			min, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid range start %q: %w", lo, err)
			}
			max, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", hi, err)
			}
			if min > max {
				return nil, fmt.Errorf("invalid range %d-%d: min > max", min, max)
			}
			if min < 100 || max > 599 {
				return nil, fmt.Errorf("invalid HTTP status code range %d-%d: must be 100-599", min, max)
			}
			set.ranges = append(set.ranges, codeRange{min: min, max: max})
			continue
		}

		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q: %w", part, err)
		}
		if code < 100 || code > 599 {
			return nil, fmt.Errorf("invalid HTTP status code %d: must be 100-599", code)
		}
		set.codes[code] = struct{}{}
	}

	if set.IsEmpty() {
		return nil, nil
	}
	return set, nil
}

// MustParseStatusCodes is like ParseStatusCodes but panics on error.
// Use only for literal constants.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

// Add adds an individual status code to the set.
func (s *StatusCodeSet) Add(code int) {
	if s.codes == nil {
		s.codes = make(map[int]struct{})
	}
	s.codes[code] = struct{}{}
}

// AddRange adds an inclusive range of status codes to the set.
func (s *StatusCodeSet) AddRange(min, max int) {
	s.ranges = append(s.ranges, codeRange{min: min, max: max})
}

// Contains returns true if the status code is in the set.
// A nil set contains nothing.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	if _, ok := s.codes[code]; ok {
		return true
	}
	for _, r := range s.ranges {
		if code >= r.min && code <= r.max {
			return true
		}
	}
	return false
}

// IsEmpty returns true if the set has no codes or ranges.
func (s *StatusCodeSet) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.codes) == 0 && len(s.ranges) == 0
}

// String renders the set in the form ParseStatusCodes accepts,
// ranges first, individual codes sorted.
func (s *StatusCodeSet) String() string {
	if s.IsEmpty() {
		return ""
	}

	var parts []string
	for _, r := range s.ranges {
		if r.min == r.max {
			parts = append(parts, strconv.Itoa(r.min))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.min, r.max))
		}
	}

	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		parts = append(parts, strconv.Itoa(code))
	}

	return strings.Join(parts, ",")
}
