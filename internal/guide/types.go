// Package guide joins playlist channels with EPG schedules and answers
// now/next queries. A build produces an immutable Snapshot; readers never
// observe a partially constructed guide.
package guide

import (
	"time"
)

// Channel is a playlist channel as served by the guide.
type Channel struct {
	// ID uniquely identifies the channel within a snapshot. It is the
	// declared tvg-id when present and unique, otherwise derived from
	// the stream URL.
	ID string `json:"id"`

	// TvgID is the EPG identifier declared in the playlist, if any.
	TvgID string `json:"tvg_id,omitempty"`

	Name      string `json:"name"`
	Number    int    `json:"number,omitempty"`
	Group     string `json:"group,omitempty"`
	LogoURL   string `json:"logo_url,omitempty"`
	StreamURL string `json:"stream_url"`

	// Attrs holds playlist attributes not promoted to a named field.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Program is a schedule entry. Times are UTC.
type Program struct {
	Title       string    `json:"title"`
	SubTitle    string    `json:"sub_title,omitempty"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Icon        string    `json:"icon,omitempty"`
	EpisodeNum  string    `json:"episode_num,omitempty"`
	Rating      string    `json:"rating,omitempty"`
}

// Duration returns the scheduled length of the program.
func (p *Program) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Airing reports whether the program covers the instant. The start is
// inclusive, the end exclusive.
func (p *Program) Airing(at time.Time) bool {
	return !p.Start.After(at) && p.End.After(at)
}

// EpgChannel is a channel definition from the EPG source.
type EpgChannel struct {
	ID           string   `json:"id"`
	DisplayNames []string `json:"display_names,omitempty"`
	Icon         string   `json:"icon,omitempty"`
}

// MatchKind says how a channel was bound to its EPG schedule. Weaker
// tiers are distinguishable so consumers can flag uncertain matches.
type MatchKind string

const (
	// MatchNone means no EPG channel could be bound.
	MatchNone MatchKind = "none"

	// MatchExact is an exact tvg-id equality match.
	MatchExact MatchKind = "exact"

	// MatchName is a case-insensitive, whitespace-normalized
	// display-name equality match.
	MatchName MatchKind = "name"

	// MatchFuzzy is a bounded-edit-distance name match. Only produced
	// when fuzzy matching is enabled.
	MatchFuzzy MatchKind = "fuzzy"
)

// Binding associates a playlist channel with an EPG channel id.
// Bindings belong to exactly one snapshot generation; a reload builds a
// fresh set, so stale bindings cannot leak across datasets.
type Binding struct {
	ChannelID  string    `json:"channel_id"`
	EpgID      string    `json:"epg_id"`
	Kind       MatchKind `json:"kind"`
	Generation uint64    `json:"generation"`
}

// NowNext is the guide answer for a channel at an instant.
type NowNext struct {
	Channel *Channel  `json:"channel"`
	Match   MatchKind `json:"match"`
	Current *Program  `json:"current,omitempty"`
	Next    *Program  `json:"next,omitempty"`
}

// Stats describes what a snapshot was built from.
type Stats struct {
	Channels          int `json:"channels"`
	Groups            int `json:"groups"`
	EpgChannels       int `json:"epg_channels"`
	Programs          int `json:"programs"`
	PlaylistMalformed int `json:"playlist_malformed"`
	EpgMalformed      int `json:"epg_malformed"`

	// Bound counts channels per match kind.
	Bound map[MatchKind]int `json:"bound"`
}
