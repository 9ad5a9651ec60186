package guide

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Snapshot is an immutable view of one loaded playlist/EPG pair. All
// readers share it; a reload produces a new snapshot rather than
// mutating this one, so consumers see fully-old or fully-new data and
// never a mix.
type Snapshot struct {
	generation uint64
	loadedAt   time.Time

	channels []*Channel
	byID     map[string]*Channel

	epgChannels map[string]*EpgChannel
	schedules   map[string]*Schedule
	bindings    map[string]Binding

	groups []string
	stats  Stats
}

// Builder accumulates parsed playlist and EPG data and produces a
// Snapshot. Channel order is preserved from the playlist.
type Builder struct {
	opts MatcherOptions

	channels []*Channel
	byID     map[string]*Channel

	epgChannels []*EpgChannel
	epgByID     map[string]*EpgChannel
	programs    map[string][]Program

	playlistMalformed int
	epgMalformed      int
}

// NewBuilder creates an empty builder.
func NewBuilder(opts MatcherOptions) *Builder {
	return &Builder{
		opts:     opts,
		byID:     make(map[string]*Channel),
		epgByID:  make(map[string]*EpgChannel),
		programs: make(map[string][]Program),
	}
}

// AddChannel appends a playlist channel. The id and stream URL must be
// non-empty and the id unique within the build.
func (b *Builder) AddChannel(ch *Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("channel %q: empty id", ch.Name)
	}
	if ch.StreamURL == "" {
		return fmt.Errorf("channel %q: empty stream URL", ch.ID)
	}
	if _, exists := b.byID[ch.ID]; exists {
		return fmt.Errorf("channel %q: duplicate id", ch.ID)
	}
	b.byID[ch.ID] = ch
	b.channels = append(b.channels, ch)
	return nil
}

// AddEpgChannel registers an EPG channel definition.
func (b *Builder) AddEpgChannel(ch *EpgChannel) {
	if ch.ID == "" {
		return
	}
	if existing, ok := b.epgByID[ch.ID]; ok {
		existing.DisplayNames = append(existing.DisplayNames, ch.DisplayNames...)
		if existing.Icon == "" {
			existing.Icon = ch.Icon
		}
		return
	}
	b.epgByID[ch.ID] = ch
	b.epgChannels = append(b.epgChannels, ch)
}

// AddProgram appends a program to an EPG channel's schedule.
func (b *Builder) AddProgram(epgID string, p Program) {
	if epgID == "" {
		return
	}
	b.programs[epgID] = append(b.programs[epgID], p)
}

// SetPlaylistMalformed records the playlist parser's skip count.
func (b *Builder) SetPlaylistMalformed(n int) { b.playlistMalformed = n }

// SetEpgMalformed records the EPG parser's skip count.
func (b *Builder) SetEpgMalformed(n int) { b.epgMalformed = n }

// Build resolves bindings and assembles the snapshot for a generation.
func (b *Builder) Build(generation uint64) *Snapshot {
	// Programmes may reference channel ids the feed never defines;
	// give those ids a bare definition so exact tvg-id matches and
	// exports still work.
	for id := range b.programs {
		if _, ok := b.epgByID[id]; !ok {
			ch := &EpgChannel{ID: id}
			b.epgByID[id] = ch
			b.epgChannels = append(b.epgChannels, ch)
		}
	}

	snap := &Snapshot{
		generation:  generation,
		loadedAt:    time.Now().UTC(),
		channels:    b.channels,
		byID:        b.byID,
		epgChannels: b.epgByID,
		schedules:   make(map[string]*Schedule, len(b.programs)),
		bindings:    make(map[string]Binding, len(b.channels)),
	}

	programCount := 0
	for id, programs := range b.programs {
		snap.schedules[id] = newSchedule(programs)
		programCount += len(programs)
	}

	m := newMatcher(b.epgChannels, b.opts)
	bound := map[MatchKind]int{}
	for _, ch := range b.channels {
		epgID, kind := m.match(ch)
		if kind == MatchNone {
			continue
		}
		snap.bindings[ch.ID] = Binding{
			ChannelID:  ch.ID,
			EpgID:      epgID,
			Kind:       kind,
			Generation: generation,
		}
		bound[kind]++
	}

	groupSet := map[string]struct{}{}
	for _, ch := range b.channels {
		if ch.Group != "" {
			groupSet[ch.Group] = struct{}{}
		}
	}
	snap.groups = make([]string, 0, len(groupSet))
	for g := range groupSet {
		snap.groups = append(snap.groups, g)
	}
	sort.Strings(snap.groups)

	snap.stats = Stats{
		Channels:          len(b.channels),
		Groups:            len(snap.groups),
		EpgChannels:       len(b.epgChannels),
		Programs:          programCount,
		PlaylistMalformed: b.playlistMalformed,
		EpgMalformed:      b.epgMalformed,
		Bound:             bound,
	}
	return snap
}

// Empty returns a snapshot with no data, used before the first load.
func Empty() *Snapshot {
	return NewBuilder(MatcherOptions{}).Build(0)
}

// Generation returns the reload generation this snapshot belongs to.
func (s *Snapshot) Generation() uint64 { return s.generation }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Stats returns build statistics.
func (s *Snapshot) Stats() Stats { return s.stats }

// Channels returns all channels in playlist order.
func (s *Snapshot) Channels() []*Channel { return s.channels }

// Channel looks a channel up by id.
func (s *Snapshot) Channel(id string) (*Channel, bool) {
	ch, ok := s.byID[id]
	return ch, ok
}

// Groups returns the distinct group names, sorted.
func (s *Snapshot) Groups() []string { return s.groups }

// GroupChannels returns the channels of one group in playlist order.
func (s *Snapshot) GroupChannels(group string) []*Channel {
	var out []*Channel
	for _, ch := range s.channels {
		if ch.Group == group {
			out = append(out, ch)
		}
	}
	return out
}

// Search returns channels whose name contains the query,
// case-insensitively, in playlist order. An empty query matches nothing.
func (s *Snapshot) Search(query string) []*Channel {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []*Channel
	for _, ch := range s.channels {
		if strings.Contains(strings.ToLower(ch.Name), q) {
			out = append(out, ch)
		}
	}
	return out
}

// Binding returns the EPG binding for a channel, if one was resolved.
func (s *Snapshot) Binding(channelID string) (Binding, bool) {
	b, ok := s.bindings[channelID]
	return b, ok
}

// Schedule returns the bound schedule for a channel. The second return
// is false when the channel is unknown or unbound.
func (s *Snapshot) Schedule(channelID string) (*Schedule, bool) {
	b, ok := s.bindings[channelID]
	if !ok {
		return nil, false
	}
	sched, ok := s.schedules[b.EpgID]
	return sched, ok
}

// EpgChannel looks up an EPG channel definition by id.
func (s *Snapshot) EpgChannel(id string) (*EpgChannel, bool) {
	ch, ok := s.epgChannels[id]
	return ch, ok
}

// NowNext answers the current and next program for a channel at an
// instant. The boolean is false when the channel id is unknown.
func (s *Snapshot) NowNext(channelID string, at time.Time) (*NowNext, bool) {
	ch, ok := s.byID[channelID]
	if !ok {
		return nil, false
	}
	nn := &NowNext{Channel: ch, Match: MatchNone}
	if b, ok := s.bindings[channelID]; ok {
		nn.Match = b.Kind
		if sched, ok := s.schedules[b.EpgID]; ok {
			nn.Current, nn.Next = sched.NowNext(at)
		}
	}
	return nn, true
}

// Upcoming returns up to n programs starting after the instant for a
// channel. The boolean is false when the channel id is unknown.
func (s *Snapshot) Upcoming(channelID string, at time.Time, n int) ([]Program, bool) {
	if _, ok := s.byID[channelID]; !ok {
		return nil, false
	}
	sched, ok := s.Schedule(channelID)
	if !ok {
		return nil, true
	}
	return sched.Upcoming(at, n), true
}
