// Package scheduler triggers guide reloads on cron schedules. Each
// enabled source carries its own schedule (or inherits the configured
// default); when any schedule comes due the whole guide reloads, since a
// snapshot is always rebuilt from every source at once. The scheduler
// also runs periodic logo cache maintenance.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/observability"
	"github.com/jmylchreest/tvgrid/internal/session"
	"github.com/jmylchreest/tvgrid/pkg/format"
)

// SourceStore is the subset of source persistence the scheduler needs.
// repository.SourceRepository satisfies it.
type SourceStore interface {
	GetEnabled(ctx context.Context) ([]*models.Source, error)
	MarkLoaded(ctx context.Context, id models.ULID, at time.Time) error
	MarkFailed(ctx context.Context, id models.ULID, lastError string) error
}

// GuideSession reloads the live guide. *session.Session satisfies it.
type GuideSession interface {
	Reload(ctx context.Context, sources session.Sources) error
}

// LogoMaintainer prunes stale cached logos. *logocache.Cache satisfies it.
type LogoMaintainer interface {
	Prune(ctx context.Context, retention time.Duration) (logocache.PruneResult, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// SyncInterval is how often schedules are checked.
	// Default: 1 minute.
	SyncInterval time.Duration

	// DefaultRefreshCron is applied to sources without their own
	// schedule. Default: "@every 6h".
	DefaultRefreshCron string

	// LogoRetention is how long an unseen cached logo is kept.
	// Zero disables logo maintenance.
	LogoRetention time.Duration

	// LogoMaintenanceCron schedules the retention pass.
	// Default: "@daily".
	LogoMaintenanceCron string
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:        time.Minute,
		DefaultRefreshCron:  "@every 6h",
		LogoMaintenanceCron: "@daily",
	}
}

// Scheduler checks source schedules on a fixed interval and fires
// reloads as they come due.
type Scheduler struct {
	mu sync.Mutex

	sources SourceStore
	guide   GuideSession
	logos   LogoMaintainer

	logger *slog.Logger
	parser cron.Parser

	syncInterval  time.Duration
	defaultCron   string
	logoRetention time.Duration
	logoCron      string

	// startedAt anchors schedules that have not fired yet, so a source
	// due "every 6 hours" fires 6 hours after boot, not immediately on
	// top of the startup reload.
	startedAt       time.Time
	lastFired       map[string]time.Time
	lastMaintenance time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler with default configuration.
func New(sources SourceStore, guide GuideSession) *Scheduler {
	cfg := DefaultConfig()
	return &Scheduler{
		sources:      sources,
		guide:        guide,
		logger:       slog.Default(),
		parser:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		syncInterval: cfg.SyncInterval,
		defaultCron:  cfg.DefaultRefreshCron,
		logoCron:     cfg.LogoMaintenanceCron,
		lastFired:    make(map[string]time.Time),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithConfig applies configuration. Not safe after Start.
func (s *Scheduler) WithConfig(cfg Config) *Scheduler {
	if cfg.SyncInterval > 0 {
		s.syncInterval = cfg.SyncInterval
	}
	if cfg.DefaultRefreshCron != "" {
		s.defaultCron = cfg.DefaultRefreshCron
	}
	if cfg.LogoRetention > 0 {
		s.logoRetention = cfg.LogoRetention
	}
	if cfg.LogoMaintenanceCron != "" {
		s.logoCron = cfg.LogoMaintenanceCron
	}
	return s
}

// WithLogoMaintenance enables periodic logo pruning.
func (s *Scheduler) WithLogoMaintenance(logos LogoMaintainer) *Scheduler {
	s.logos = logos
	return s
}

// Start begins the scheduler's background sync loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.syncLoop()

	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval),
		slog.String("default_refresh", format.CronDescription(s.defaultCron)))

	return nil
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sync(s.ctx)
		}
	}
}

// sync checks every schedule once.
func (s *Scheduler) sync(ctx context.Context) {
	now := time.Now()
	s.syncSources(ctx, now)
	s.syncLogoMaintenance(ctx, now)
}

func (s *Scheduler) syncSources(ctx context.Context, now time.Time) {
	enabled, err := s.sources.GetEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to load sources for scheduling", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	live := make(map[string]struct{}, len(enabled))
	var due []string
	for _, src := range enabled {
		key := src.ID.String()
		live[key] = struct{}{}
		anchor, fired := s.lastFired[key]
		if !fired {
			anchor = s.startedAt
		}
		if s.dueAt(s.EffectiveCron(src), anchor, now) {
			// Fired now regardless of the reload outcome: a failing
			// provider is retried at its next cron point, not every
			// sync tick. The failure lands on the source record.
			s.lastFired[key] = now
			due = append(due, src.Name)
		}
	}
	for key := range s.lastFired {
		if _, ok := live[key]; !ok {
			delete(s.lastFired, key)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.logger.Info("refresh schedule due", slog.Any("sources", due))
	if err := s.RefreshNow(ctx); err != nil {
		s.logger.Error("scheduled refresh failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) syncLogoMaintenance(ctx context.Context, now time.Time) {
	if s.logos == nil || s.logoRetention <= 0 {
		return
	}

	s.mu.Lock()
	anchor := s.lastMaintenance
	if anchor.IsZero() {
		anchor = s.startedAt
	}
	fire := s.dueAt(s.logoCron, anchor, now)
	if fire {
		s.lastMaintenance = now
	}
	s.mu.Unlock()

	if !fire {
		return
	}

	result, err := s.logos.Prune(ctx, s.logoRetention)
	if err != nil {
		s.logger.Error("logo maintenance failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("logo maintenance completed",
		slog.Int("removed", result.Removed),
		slog.String("freed", format.Bytes(result.Freed)))
}

// dueAt reports whether a schedule anchored at anchor has a run at or
// before now.
func (s *Scheduler) dueAt(expr string, anchor, now time.Time) bool {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		s.logger.Warn("invalid cron expression", slog.String("cron", expr), slog.String("error", err.Error()))
		return false
	}
	return !sched.Next(anchor).After(now)
}

// RefreshNow resolves the active sources and reloads the guide
// synchronously. Used by the sync loop, the startup load, and the manual
// reload endpoint.
func (s *Scheduler) RefreshNow(ctx context.Context) (err error) {
	defer observability.TimedOperationWithError(ctx, s.logger, "guide_refresh", &err)()

	pair, involved, rerr := s.resolveSources(ctx)
	if rerr != nil {
		err = rerr
		return err
	}
	err = s.refresh(ctx, pair, involved)
	return err
}

// resolveSources picks the active playlist and EPG source. The session
// consumes one pair; the first enabled source of each type wins and any
// extras wait until the active one is disabled or removed.
func (s *Scheduler) resolveSources(ctx context.Context) (session.Sources, []*models.Source, error) {
	enabled, err := s.sources.GetEnabled(ctx)
	if err != nil {
		return session.Sources{}, nil, fmt.Errorf("loading sources: %w", err)
	}

	var pair session.Sources
	var involved []*models.Source
	for _, src := range enabled {
		switch {
		case src.IsPlaylist() && pair.Playlist == "":
			pair.Playlist = src.URL
			involved = append(involved, src)
		case src.IsEPG() && pair.EPG == "":
			pair.EPG = src.URL
			involved = append(involved, src)
		case src.IsPlaylist():
			s.logger.Warn("ignoring extra enabled playlist source", slog.String("source", src.Name))
		case src.IsEPG():
			s.logger.Warn("ignoring extra enabled EPG source", slog.String("source", src.Name))
		}
	}

	if pair.Playlist == "" {
		return session.Sources{}, nil, session.ErrNoPlaylist
	}
	return pair, involved, nil
}

// refresh reloads the guide and records the outcome on every involved
// source. The reload is all-or-nothing, so success and failure both
// apply to the pair as a unit.
func (s *Scheduler) refresh(ctx context.Context, pair session.Sources, involved []*models.Source) error {
	err := s.guide.Reload(ctx, pair)
	switch {
	case err == nil:
		now := time.Now()
		for _, src := range involved {
			if mErr := s.sources.MarkLoaded(ctx, src.ID, now); mErr != nil {
				s.logger.Warn("failed to record source load",
					slog.String("source", src.Name),
					slog.String("error", mErr.Error()))
			}
		}
		return nil
	case errors.Is(err, session.ErrSuperseded):
		// A newer reload owns the outcome; nothing to record.
		s.logger.Debug("refresh superseded")
		return nil
	default:
		for _, src := range involved {
			if mErr := s.sources.MarkFailed(ctx, src.ID, err.Error()); mErr != nil {
				s.logger.Warn("failed to record source failure",
					slog.String("source", src.Name),
					slog.String("error", mErr.Error()))
			}
		}
		return err
	}
}

// EffectiveCron returns the schedule governing a source: its own
// RefreshCron, or the configured default.
func (s *Scheduler) EffectiveCron(src *models.Source) string {
	if src.RefreshCron != "" {
		return src.RefreshCron
	}
	return s.defaultCron
}

// ParseCron validates a cron expression and returns its next run time.
func (s *Scheduler) ParseCron(expr string) (time.Time, error) {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched.Next(time.Now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
