package guide

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testEpgChannels() []*EpgChannel {
	return []*EpgChannel{
		{ID: "bbc1.uk", DisplayNames: []string{"BBC One", "BBC 1"}},
		{ID: "itv.uk", DisplayNames: []string{"ITV"}},
		{ID: "c4.uk", DisplayNames: []string{"Channel 4"}},
	}
}

func TestMatcher_ExactID(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{})

	id, kind := m.match(&Channel{ID: "x", TvgID: "bbc1.uk", Name: "Something Else"})
	assert.Equal(t, "bbc1.uk", id)
	assert.Equal(t, MatchExact, kind)
}

func TestMatcher_ExactBeatsName(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{})

	// tvg-id points at ITV even though the name says BBC One.
	id, kind := m.match(&Channel{ID: "x", TvgID: "itv.uk", Name: "BBC One"})
	assert.Equal(t, "itv.uk", id)
	assert.Equal(t, MatchExact, kind)
}

func TestMatcher_NameFallback(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{})

	// Unknown tvg-id falls through to the name tier.
	id, kind := m.match(&Channel{ID: "x", TvgID: "nope", Name: "BBC One"})
	assert.Equal(t, "bbc1.uk", id)
	assert.Equal(t, MatchName, kind)

	// Case and whitespace are normalized away.
	id, kind = m.match(&Channel{ID: "x", Name: "  bbc   ONE "})
	assert.Equal(t, "bbc1.uk", id)
	assert.Equal(t, MatchName, kind)

	// Any declared alias matches.
	id, kind = m.match(&Channel{ID: "x", Name: "bbc 1"})
	assert.Equal(t, "bbc1.uk", id)
	assert.Equal(t, MatchName, kind)
}

func TestMatcher_NoMatch(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{})

	id, kind := m.match(&Channel{ID: "x", TvgID: "nope", Name: "Totally Unknown"})
	assert.Empty(t, id)
	assert.Equal(t, MatchNone, kind)
}

func TestMatcher_FuzzyDisabledByDefault(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{})

	// One typo away from "bbc one", but fuzzy is off.
	_, kind := m.match(&Channel{ID: "x", Name: "BBC Ome"})
	assert.Equal(t, MatchNone, kind)
}

func TestMatcher_FuzzyMatch(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{Fuzzy: true})

	id, kind := m.match(&Channel{ID: "x", Name: "BBC Ome"})
	assert.Equal(t, "bbc1.uk", id)
	assert.Equal(t, MatchFuzzy, kind)

	// Distance beyond the bound stays unmatched.
	_, kind = m.match(&Channel{ID: "x", Name: "Discovery Science HD"})
	assert.Equal(t, MatchNone, kind)
}

func TestMatcher_FuzzyNeverOverridesExact(t *testing.T) {
	m := newMatcher(testEpgChannels(), MatcherOptions{Fuzzy: true})

	id, kind := m.match(&Channel{ID: "x", TvgID: "c4.uk", Name: "BBC Ome"})
	assert.Equal(t, "c4.uk", id)
	assert.Equal(t, MatchExact, kind)
}

func TestMatcher_FuzzyDeterministicOnTies(t *testing.T) {
	channels := []*EpgChannel{
		{ID: "a.tv", DisplayNames: []string{"aaa"}},
		{ID: "b.tv", DisplayNames: []string{"aab"}},
	}
	// "aac" is distance 1 from both; the smaller key must win every time.
	for i := 0; i < 10; i++ {
		m := newMatcher(channels, MatcherOptions{Fuzzy: true, FuzzyMaxDistance: 1})
		id, kind := m.match(&Channel{ID: "x", Name: "aac"})
		assert.Equal(t, MatchFuzzy, kind)
		assert.Equal(t, "a.tv", id)
	}
}

func TestMatcher_FirstNameDefinitionWins(t *testing.T) {
	channels := []*EpgChannel{
		{ID: "first.tv", DisplayNames: []string{"Shared Name"}},
		{ID: "second.tv", DisplayNames: []string{"Shared Name"}},
	}
	m := newMatcher(channels, MatcherOptions{})

	id, kind := m.match(&Channel{ID: "x", Name: "Shared Name"})
	assert.Equal(t, "first.tv", id)
	assert.Equal(t, MatchName, kind)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BBC One", "bbc one"},
		{"  BBC   One  ", "bbc one"},
		{"bbc\tone", "bbc one"},
		{"BBC ONE", "bbc one"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeName(tt.input), "input %q", tt.input)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"bbc one", "bbc ome", 1},
		{"flaw", "lawn", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b, 10), "%q vs %q", tt.a, tt.b)
	}
}

func TestLevenshtein_EarlyExit(t *testing.T) {
	// With a tight bound the exact distance is not needed, only that it
	// exceeds the bound.
	d := levenshtein("completely different", "nothing alike at all", 2)
	assert.Greater(t, d, 2)
}
