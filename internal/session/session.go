// Package session owns the live guide dataset. A single session holds one
// immutable snapshot at a time; reloads run in the background and swap the
// snapshot atomically, so readers always see a fully-old or fully-new
// dataset. Every reload claims a generation from a monotonic counter; a
// reload that is superseded by a newer claim discards its result instead
// of applying it out of order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/ingest"
	"github.com/jmylchreest/tvgrid/internal/urlutil"
)

// ErrSuperseded is returned by Reload when a newer reload claimed the
// session before this one finished. The result was discarded; the newer
// reload's outcome is authoritative.
var ErrSuperseded = errors.New("reload superseded by a newer reload")

// ErrNoPlaylist is returned when a reload is requested without a playlist
// source.
var ErrNoPlaylist = errors.New("no playlist source configured")

// Loader produces snapshot inputs from playlist and EPG sources.
type Loader interface {
	LoadPlaylist(ctx context.Context, source string) (*ingest.PlaylistResult, error)
	LoadEPG(ctx context.Context, source string) (*ingest.EPGResult, error)
}

var _ Loader = (*ingest.Loader)(nil)

// Sources is the pair of inputs a reload consumes. EPG is optional; when
// empty the reload produces a guide with no programme data.
type Sources struct {
	Playlist string `json:"playlist"`
	EPG      string `json:"epg,omitempty"`
}

// State describes where the most recent reload attempt stands.
type State string

const (
	// StateIdle means no reload has been attempted yet.
	StateIdle State = "idle"

	// StateLoading means a reload is in flight.
	StateLoading State = "loading"

	// StateReady means the last reload succeeded and its snapshot is live.
	StateReady State = "ready"

	// StateFailed means the last reload failed; the previous snapshot
	// stayed active.
	StateFailed State = "failed"
)

// Status reports the latest reload attempt. Superseded reloads never
// write status; the fields always describe the newest claim.
type Status struct {
	State      State
	Generation uint64
	Sources    Sources
	StartedAt  time.Time
	FinishedAt time.Time

	// Error holds the human-readable failure reason when State is failed.
	Error string

	// Skipped-record counts from the attempt, including partial parses
	// of a reload that later failed.
	PlaylistMalformed int
	EpgMalformed      int
}

// Session is the single active guide session.
type Session struct {
	loader Loader
	opts   guide.MatcherOptions
	logger *slog.Logger

	// snapshot is read lock-free; writes are serialized by mu so a
	// superseded reload can never overwrite a newer snapshot.
	snapshot   atomic.Pointer[guide.Snapshot]
	generation atomic.Uint64

	mu      sync.Mutex
	status  Status
	sources Sources

	subMu       sync.RWMutex
	subscribers []chan<- *guide.Snapshot
}

// New creates a session with an empty snapshot.
func New(loader Loader, opts guide.MatcherOptions, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		loader: loader,
		opts:   opts,
		logger: logger,
		status: Status{State: StateIdle},
	}
	s.snapshot.Store(guide.Empty())
	return s
}

// Current returns the live snapshot. Never nil; before the first
// successful reload it is empty with generation zero.
func (s *Session) Current() *guide.Snapshot {
	return s.snapshot.Load()
}

// Status returns a copy of the latest reload status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Sources returns the most recently requested source pair.
func (s *Session) Sources() Sources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources
}

// Subscribe registers a channel that receives each newly activated
// snapshot. Sends are non-blocking; a full channel misses that update.
func (s *Session) Subscribe(ch chan<- *guide.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, ch)
}

func (s *Session) notify(snap *guide.Snapshot) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// TriggerReload starts a reload in the background. Errors, including
// supersede discards, are logged rather than returned.
func (s *Session) TriggerReload(ctx context.Context, sources Sources) {
	go func() {
		err := s.Reload(ctx, sources)
		switch {
		case err == nil:
		case errors.Is(err, ErrSuperseded):
			s.logger.Debug("reload superseded", slog.String("playlist", urlutil.Redact(sources.Playlist)))
		default:
			s.logger.Error("reload failed",
				slog.String("playlist", urlutil.Redact(sources.Playlist)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Reload fetches and parses the sources, builds a snapshot, and swaps it
// in. Playlist and EPG load concurrently. On failure the previous
// snapshot stays active and the error carries the reason. Returns
// ErrSuperseded when a newer reload claimed the session first; the
// discarded attempt leaves no trace in the live dataset or status.
func (s *Session) Reload(ctx context.Context, sources Sources) error {
	if sources.Playlist == "" {
		return ErrNoPlaylist
	}

	gen := s.generation.Add(1)
	s.markLoading(gen, sources)

	s.logger.Info("reload started",
		slog.Uint64("generation", gen),
		slog.String("playlist", urlutil.Redact(sources.Playlist)),
		slog.String("epg", urlutil.Redact(sources.EPG)),
	)

	start := time.Now()
	var (
		playlist *ingest.PlaylistResult
		epg      *ingest.EPGResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		playlist, err = s.loader.LoadPlaylist(gctx, sources.Playlist)
		return err
	})
	if sources.EPG != "" {
		g.Go(func() error {
			var err error
			epg, err = s.loader.LoadEPG(gctx, sources.EPG)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return s.markFailed(gen, err, playlist, epg)
	}

	snap := s.buildSnapshot(gen, playlist, epg)
	if !s.activate(gen, snap) {
		return ErrSuperseded
	}

	stats := snap.Stats()
	s.logger.Info("reload completed",
		slog.Uint64("generation", gen),
		slog.Int("channels", stats.Channels),
		slog.Int("epg_channels", stats.EpgChannels),
		slog.Int("programs", stats.Programs),
		slog.Int("playlist_malformed", stats.PlaylistMalformed),
		slog.Int("epg_malformed", stats.EpgMalformed),
		slog.Duration("duration", time.Since(start)),
	)

	s.notify(snap)
	return nil
}

// buildSnapshot assembles the immutable snapshot for a generation.
// Channels the builder rejects (duplicate or empty identity) are counted
// with the parser's own malformed records.
func (s *Session) buildSnapshot(gen uint64, playlist *ingest.PlaylistResult, epg *ingest.EPGResult) *guide.Snapshot {
	b := guide.NewBuilder(s.opts)

	rejected := 0
	for _, ch := range playlist.Channels {
		if err := b.AddChannel(ch); err != nil {
			rejected++
			s.logger.Debug("skipping channel", slog.String("error", err.Error()))
		}
	}
	b.SetPlaylistMalformed(playlist.Malformed + rejected)

	if epg != nil {
		for _, ec := range epg.Channels {
			b.AddEpgChannel(ec)
		}
		for id, programs := range epg.Programs {
			for _, p := range programs {
				b.AddProgram(id, p)
			}
		}
		b.SetEpgMalformed(epg.Malformed)
	}

	return b.Build(gen)
}

// markLoading records the new attempt unless it is already stale.
func (s *Session) markLoading(gen uint64, sources Sources) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() {
		return
	}
	s.sources = sources
	s.status = Status{
		State:      StateLoading,
		Generation: gen,
		Sources:    sources,
		StartedAt:  time.Now().UTC(),
	}
}

// markFailed records a failed attempt, keeping any skip counts from parts
// that did parse. Superseded failures are absorbed into ErrSuperseded.
func (s *Session) markFailed(gen uint64, cause error, playlist *ingest.PlaylistResult, epg *ingest.EPGResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() {
		return ErrSuperseded
	}

	s.status.State = StateFailed
	s.status.FinishedAt = time.Now().UTC()
	s.status.Error = cause.Error()
	if playlist != nil {
		s.status.PlaylistMalformed = playlist.Malformed
	}
	if epg != nil {
		s.status.EpgMalformed = epg.Malformed
	}

	return fmt.Errorf("reload generation %d: %w", gen, cause)
}

// activate swaps the snapshot in unless a newer reload has claimed the
// session. The check and the store happen under one lock so a stale
// snapshot can never land after a newer one.
func (s *Session) activate(gen uint64, snap *guide.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() {
		return false
	}

	s.snapshot.Store(snap)
	stats := snap.Stats()
	s.status = Status{
		State:             StateReady,
		Generation:        gen,
		Sources:           s.sources,
		StartedAt:         s.status.StartedAt,
		FinishedAt:        time.Now().UTC(),
		PlaylistMalformed: stats.PlaylistMalformed,
		EpgMalformed:      stats.EpgMalformed,
	}
	return true
}
