package guide

import (
	"strings"
)

// MatcherOptions tune how channels are bound to EPG schedules.
type MatcherOptions struct {
	// Fuzzy enables the edit-distance fallback tier. Off by default:
	// fuzzy hits are guesses and some consumers prefer no data over a
	// wrong schedule.
	Fuzzy bool

	// FuzzyMaxDistance is the largest Levenshtein distance accepted by
	// the fuzzy tier. Zero means DefaultFuzzyMaxDistance.
	FuzzyMaxDistance int
}

// DefaultFuzzyMaxDistance tolerates small feed typos without pulling in
// unrelated channels.
const DefaultFuzzyMaxDistance = 2

func (o MatcherOptions) maxDistance() int {
	if o.FuzzyMaxDistance > 0 {
		return o.FuzzyMaxDistance
	}
	return DefaultFuzzyMaxDistance
}

// matcher resolves playlist channels to EPG channel ids in tiers:
// exact tvg-id equality, then normalized display-name equality, then an
// optional bounded-distance fuzzy pass. Weaker tiers never override
// stronger ones.
type matcher struct {
	opts MatcherOptions

	// ids holds every EPG channel id.
	ids map[string]struct{}

	// names maps normalized display names to EPG channel ids.
	// First definition wins on conflicts.
	names map[string]string
}

func newMatcher(epgChannels []*EpgChannel, opts MatcherOptions) *matcher {
	m := &matcher{
		opts:  opts,
		ids:   make(map[string]struct{}, len(epgChannels)),
		names: make(map[string]string),
	}
	for _, ch := range epgChannels {
		if ch.ID == "" {
			continue
		}
		m.ids[ch.ID] = struct{}{}
		for _, name := range ch.DisplayNames {
			key := NormalizeName(name)
			if key == "" {
				continue
			}
			if _, exists := m.names[key]; !exists {
				m.names[key] = ch.ID
			}
		}
	}
	return m
}

// match returns the EPG channel id for a playlist channel and the tier
// that produced it. MatchNone means the channel has no schedule.
func (m *matcher) match(ch *Channel) (string, MatchKind) {
	if ch.TvgID != "" {
		if _, ok := m.ids[ch.TvgID]; ok {
			return ch.TvgID, MatchExact
		}
	}

	key := NormalizeName(ch.Name)
	if key != "" {
		if id, ok := m.names[key]; ok {
			return id, MatchName
		}
	}

	if m.opts.Fuzzy && key != "" {
		if id, ok := m.fuzzyMatch(key); ok {
			return id, MatchFuzzy
		}
	}

	return "", MatchNone
}

// fuzzyMatch scans the name index for the closest key within the
// configured distance. Ties keep the lexicographically smaller key so
// repeated builds bind identically.
func (m *matcher) fuzzyMatch(key string) (string, bool) {
	maxDist := m.opts.maxDistance()
	bestDist := maxDist + 1
	bestKey := ""

	for candidate := range m.names {
		diff := len(candidate) - len(key)
		if diff > maxDist || -diff > maxDist {
			continue
		}
		d := levenshtein(key, candidate, maxDist)
		if d < bestDist || (d == bestDist && candidate < bestKey) {
			bestDist = d
			bestKey = candidate
		}
	}

	if bestDist <= maxDist {
		return m.names[bestKey], true
	}
	return "", false
}

// NormalizeName lowercases a display name and collapses runs of
// whitespace, so "Channel  One " and "channel one" compare equal.
func NormalizeName(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// levenshtein computes edit distance with a two-row table, giving up
// early once every path exceeds maxDist.
func levenshtein(a, b string, maxDist int) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
			if min < rowMin {
				rowMin = min
			}
		}
		if rowMin > maxDist {
			return rowMin
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
