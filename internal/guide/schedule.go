package guide

import (
	"sort"
	"time"
)

// Schedule holds one EPG channel's programs in chronological start order.
// Lookups are binary searches; the schedule is immutable once built.
type Schedule struct {
	programs []Program
}

// newSchedule sorts programs by start time. The sort is stable so
// duplicate starts keep document order.
func newSchedule(programs []Program) *Schedule {
	sort.SliceStable(programs, func(i, j int) bool {
		return programs[i].Start.Before(programs[j].Start)
	})
	return &Schedule{programs: programs}
}

// Len returns the number of programs in the schedule.
func (s *Schedule) Len() int {
	return len(s.programs)
}

// Programs returns the full chronological program list.
func (s *Schedule) Programs() []Program {
	return s.programs
}

// firstAfter returns the index of the first program with start > at.
func (s *Schedule) firstAfter(at time.Time) int {
	return sort.Search(len(s.programs), func(i int) bool {
		return s.programs[i].Start.After(at)
	})
}

// Current returns the program airing at the instant, or nil. The start
// bound is inclusive and the end bound exclusive, so querying exactly at
// a program's end returns its successor, not the program itself.
// When malformed feeds overlap, the covering program with the latest
// start wins.
func (s *Schedule) Current(at time.Time) *Program {
	idx := s.firstAfter(at)
	for i := idx - 1; i >= 0; i-- {
		if s.programs[i].End.After(at) {
			return &s.programs[i]
		}
	}
	return nil
}

// Next returns the program with the smallest start after the instant, or
// nil. An instant before the first start yields the first program.
func (s *Schedule) Next(at time.Time) *Program {
	idx := s.firstAfter(at)
	if idx >= len(s.programs) {
		return nil
	}
	return &s.programs[idx]
}

// NowNext returns Current and Next in one lookup.
func (s *Schedule) NowNext(at time.Time) (current, next *Program) {
	idx := s.firstAfter(at)
	for i := idx - 1; i >= 0; i-- {
		if s.programs[i].End.After(at) {
			current = &s.programs[i]
			break
		}
	}
	if idx < len(s.programs) {
		next = &s.programs[idx]
	}
	return current, next
}

// Upcoming returns up to n programs with start > at, chronologically.
func (s *Schedule) Upcoming(at time.Time, n int) []Program {
	if n <= 0 {
		return nil
	}
	idx := s.firstAfter(at)
	end := idx + n
	if end > len(s.programs) {
		end = len(s.programs)
	}
	if idx >= end {
		return nil
	}
	out := make([]Program, end-idx)
	copy(out, s.programs[idx:end])
	return out
}

// Window returns programs overlapping the half-open interval [from, to).
func (s *Schedule) Window(from, to time.Time) []Program {
	if !from.Before(to) {
		return nil
	}
	var out []Program
	// Include a program already airing at the window start.
	if cur := s.Current(from); cur != nil {
		out = append(out, *cur)
	}
	idx := s.firstAfter(from)
	for i := idx; i < len(s.programs); i++ {
		if !s.programs[i].Start.Before(to) {
			break
		}
		out = append(out, s.programs[i])
	}
	return out
}
