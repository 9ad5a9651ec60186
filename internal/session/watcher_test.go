package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/ingest"
	"github.com/jmylchreest/tvgrid/pkg/httpclient"
)

const watcherPlaylistV1 = `#EXTM3U
#EXTINF:-1 tvg-id="one.uk",Channel One
http://example.com/one.m3u8
`

const watcherPlaylistV2 = `#EXTM3U
#EXTINF:-1 tvg-id="one.uk",Channel One
http://example.com/one.m3u8
#EXTINF:-1 tvg-id="two.uk",Channel Two
http://example.com/two.m3u8
`

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u")
	require.NoError(t, os.WriteFile(path, []byte(watcherPlaylistV1), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 1
	s := New(ingest.NewLoader(cfg, logger), guide.MatcherOptions{}, logger)

	sources := Sources{Playlist: path}
	require.NoError(t, s.Reload(context.Background(), sources))
	require.Equal(t, 1, s.Current().Stats().Channels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(s, logger).WithDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start(ctx, sources))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(watcherPlaylistV2), 0o644))

	require.Eventually(t, func() bool {
		return s.Current().Stats().Channels == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, StateReady, s.Status().State)
}

func TestWatcher_SurvivesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u")
	require.NoError(t, os.WriteFile(path, []byte(watcherPlaylistV1), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 1
	s := New(ingest.NewLoader(cfg, logger), guide.MatcherOptions{}, logger)

	sources := Sources{Playlist: path}
	require.NoError(t, s.Reload(context.Background(), sources))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(s, logger).WithDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start(ctx, sources))
	defer w.Stop()

	// Editors and downloaders commonly write a temp file and rename it
	// over the target. The watch is on the directory, so the rename's
	// create event still lands.
	tmp := filepath.Join(dir, "playlist.m3u.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(watcherPlaylistV2), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return s.Current().Stats().Channels == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u")
	require.NoError(t, os.WriteFile(path, []byte(watcherPlaylistV1), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 1
	s := New(ingest.NewLoader(cfg, logger), guide.MatcherOptions{}, logger)

	sources := Sources{Playlist: path}
	require.NoError(t, s.Reload(context.Background(), sources))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(s, logger).WithDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start(ctx, sources))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, uint64(1), s.Current().Generation())
}

func TestWatcher_NoLocalSources(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestSession(&stubLoader{})

	w := NewWatcher(s, logger)
	err := w.Start(context.Background(), Sources{Playlist: "http://example.com/list.m3u"})
	require.NoError(t, err)

	// Nothing to watch; Stop on an unstarted watcher is safe.
	w.Stop()
}

