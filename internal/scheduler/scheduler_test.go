package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/session"
)

type mockSourceStore struct {
	mu      sync.Mutex
	sources []*models.Source
	loaded  map[string]int
	failed  map[string]string
	err     error
}

func newMockSourceStore(sources ...*models.Source) *mockSourceStore {
	return &mockSourceStore{
		sources: sources,
		loaded:  make(map[string]int),
		failed:  make(map[string]string),
	}
}

func (m *mockSourceStore) GetEnabled(_ context.Context) ([]*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

func (m *mockSourceStore) MarkLoaded(_ context.Context, id models.ULID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded[id.String()]++
	return nil
}

func (m *mockSourceStore) MarkFailed(_ context.Context, id models.ULID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id.String()] = lastError
	return nil
}

func (m *mockSourceStore) setSources(sources ...*models.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = sources
}

func (m *mockSourceStore) loadedCount(id models.ULID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[id.String()]
}

func (m *mockSourceStore) failedMessage(id models.ULID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[id.String()]
}

type mockGuide struct {
	mu    sync.Mutex
	calls int
	last  session.Sources
	err   error
}

func (m *mockGuide) Reload(_ context.Context, sources session.Sources) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = sources
	return m.err
}

func (m *mockGuide) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockGuide) lastSources() session.Sources {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type mockPruner struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
	result    logocache.PruneResult
}

func (m *mockPruner) Prune(_ context.Context, retention time.Duration) (logocache.PruneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.retention = retention
	return m.result, nil
}

func (m *mockPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource(name string, sourceType models.SourceType, cronExpr string) *models.Source {
	src := &models.Source{
		Name:        name,
		Type:        sourceType,
		URL:         "http://provider.example.com/" + name,
		RefreshCron: cronExpr,
	}
	src.ID = models.NewULID()
	return src
}

func TestRefreshNow_Success(t *testing.T) {
	playlist := testSource("provider", models.SourceTypePlaylist, "")
	epg := testSource("guide", models.SourceTypeEPG, "")
	store := newMockSourceStore(playlist, epg)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	require.NoError(t, s.RefreshNow(context.Background()))

	assert.Equal(t, 1, guide.callCount())
	assert.Equal(t, session.Sources{Playlist: playlist.URL, EPG: epg.URL}, guide.lastSources())
	assert.Equal(t, 1, store.loadedCount(playlist.ID))
	assert.Equal(t, 1, store.loadedCount(epg.ID))
}

func TestRefreshNow_EPGOptional(t *testing.T) {
	playlist := testSource("provider", models.SourceTypePlaylist, "")
	store := newMockSourceStore(playlist)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	require.NoError(t, s.RefreshNow(context.Background()))
	assert.Equal(t, session.Sources{Playlist: playlist.URL}, guide.lastSources())
}

func TestRefreshNow_NoPlaylist(t *testing.T) {
	epg := testSource("guide", models.SourceTypeEPG, "")
	store := newMockSourceStore(epg)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	err := s.RefreshNow(context.Background())
	assert.ErrorIs(t, err, session.ErrNoPlaylist)
	assert.Zero(t, guide.callCount())
}

func TestRefreshNow_ReloadFails(t *testing.T) {
	playlist := testSource("provider", models.SourceTypePlaylist, "")
	epg := testSource("guide", models.SourceTypeEPG, "")
	store := newMockSourceStore(playlist, epg)
	guide := &mockGuide{err: errors.New("provider unreachable")}
	s := New(store, guide).WithLogger(testLogger())

	err := s.RefreshNow(context.Background())
	require.Error(t, err)

	assert.Zero(t, store.loadedCount(playlist.ID))
	assert.Contains(t, store.failedMessage(playlist.ID), "provider unreachable")
	assert.Contains(t, store.failedMessage(epg.ID), "provider unreachable")
}

func TestRefreshNow_SupersededIsNotFailure(t *testing.T) {
	playlist := testSource("provider", models.SourceTypePlaylist, "")
	store := newMockSourceStore(playlist)
	guide := &mockGuide{err: session.ErrSuperseded}
	s := New(store, guide).WithLogger(testLogger())

	require.NoError(t, s.RefreshNow(context.Background()))
	assert.Zero(t, store.loadedCount(playlist.ID))
	assert.Empty(t, store.failedMessage(playlist.ID))
}

func TestRefreshNow_ExtraSourcesIgnored(t *testing.T) {
	first := testSource("primary", models.SourceTypePlaylist, "")
	second := testSource("backup", models.SourceTypePlaylist, "")
	store := newMockSourceStore(first, second)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	require.NoError(t, s.RefreshNow(context.Background()))

	assert.Equal(t, first.URL, guide.lastSources().Playlist)
	assert.Equal(t, 1, store.loadedCount(first.ID))
	assert.Zero(t, store.loadedCount(second.ID))
}

func TestRefreshNow_StoreError(t *testing.T) {
	store := newMockSourceStore()
	store.err = errors.New("db closed")
	s := New(store, &mockGuide{}).WithLogger(testLogger())

	err := s.RefreshNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading sources")
}

func TestSync_FiresDueSource(t *testing.T) {
	src := testSource("provider", models.SourceTypePlaylist, "* * * * *")
	store := newMockSourceStore(src)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-2 * time.Minute)

	s.syncSources(context.Background(), now)
	assert.Equal(t, 1, guide.callCount())

	// Fired at 12:00:30; the next run is 12:01, so 12:00:40 is quiet.
	s.syncSources(context.Background(), now.Add(10*time.Second))
	assert.Equal(t, 1, guide.callCount())

	s.syncSources(context.Background(), now.Add(time.Minute))
	assert.Equal(t, 2, guide.callCount())
}

func TestSync_NotDueBeforeFirstRun(t *testing.T) {
	src := testSource("provider", models.SourceTypePlaylist, "@every 6h")
	store := newMockSourceStore(src)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.startedAt = now.Add(-10 * time.Minute)

	s.syncSources(context.Background(), now)
	assert.Zero(t, guide.callCount())

	s.syncSources(context.Background(), now.Add(6*time.Hour))
	assert.Equal(t, 1, guide.callCount())
}

func TestSync_DefaultCronApplied(t *testing.T) {
	src := testSource("provider", models.SourceTypePlaylist, "")
	store := newMockSourceStore(src)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger()).
		WithConfig(Config{DefaultRefreshCron: "* * * * *"})

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-2 * time.Minute)

	s.syncSources(context.Background(), now)
	assert.Equal(t, 1, guide.callCount())
}

func TestSync_InvalidCronSkipped(t *testing.T) {
	src := testSource("provider", models.SourceTypePlaylist, "not a cron")
	store := newMockSourceStore(src)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-48 * time.Hour)

	s.syncSources(context.Background(), now)
	assert.Zero(t, guide.callCount())
}

func TestSync_ForgetsRemovedSources(t *testing.T) {
	src := testSource("provider", models.SourceTypePlaylist, "* * * * *")
	store := newMockSourceStore(src)
	guide := &mockGuide{}
	s := New(store, guide).WithLogger(testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-2 * time.Minute)

	s.syncSources(context.Background(), now)
	assert.Len(t, s.lastFired, 1)

	store.setSources()
	s.syncSources(context.Background(), now.Add(time.Minute))
	assert.Empty(t, s.lastFired)
}

func TestSync_LogoMaintenance(t *testing.T) {
	store := newMockSourceStore()
	pruner := &mockPruner{result: logocache.PruneResult{Removed: 3, Freed: 1024}}
	s := New(store, &mockGuide{}).WithLogger(testLogger()).
		WithConfig(Config{LogoRetention: 24 * time.Hour, LogoMaintenanceCron: "* * * * *"}).
		WithLogoMaintenance(pruner)

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-2 * time.Minute)

	s.syncLogoMaintenance(context.Background(), now)
	assert.Equal(t, 1, pruner.callCount())
	assert.Equal(t, 24*time.Hour, pruner.retention)

	s.syncLogoMaintenance(context.Background(), now.Add(10*time.Second))
	assert.Equal(t, 1, pruner.callCount())
}

func TestSync_LogoMaintenanceRequiresRetention(t *testing.T) {
	pruner := &mockPruner{}
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger()).
		WithConfig(Config{LogoMaintenanceCron: "* * * * *"}).
		WithLogoMaintenance(pruner)

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	s.startedAt = now.Add(-48 * time.Hour)

	s.syncLogoMaintenance(context.Background(), now)
	assert.Zero(t, pruner.callCount())
}

func TestStartStop(t *testing.T) {
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger()).
		WithConfig(Config{SyncInterval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestDueAt(t *testing.T) {
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expr   string
		anchor time.Time
		due    bool
	}{
		{"every interval elapsed", "@every 5m", now.Add(-10 * time.Minute), true},
		{"every interval pending", "@every 5m", now.Add(-2 * time.Minute), false},
		{"daily elapsed", "0 3 * * *", now.Add(-24 * time.Hour), true},
		{"daily pending", "0 3 * * *", now.Add(-time.Hour), false},
		{"descriptor daily", "@daily", now.Add(-25 * time.Hour), true},
		{"invalid expression", "bogus", now.Add(-24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, s.dueAt(tt.expr, tt.anchor, now))
		})
	}
}

func TestEffectiveCron(t *testing.T) {
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger()).
		WithConfig(Config{DefaultRefreshCron: "@every 12h"})

	withOwn := testSource("provider", models.SourceTypePlaylist, "0 4 * * *")
	assert.Equal(t, "0 4 * * *", s.EffectiveCron(withOwn))

	withoutOwn := testSource("other", models.SourceTypePlaylist, "")
	assert.Equal(t, "@every 12h", s.EffectiveCron(withoutOwn))
}

func TestParseCron(t *testing.T) {
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger())

	next, err := s.ParseCron("*/5 * * * *")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))

	_, err = s.ParseCron("not a cron")
	assert.Error(t, err)
}

func TestValidateCron(t *testing.T) {
	s := New(newMockSourceStore(), &mockGuide{}).WithLogger(testLogger())

	assert.NoError(t, s.ValidateCron("0 */6 * * *"))
	assert.NoError(t, s.ValidateCron("@every 6h"))
	assert.Error(t, s.ValidateCron("61 * * * *"))
}
