package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/tvgrid/internal/urlutil"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the session when a local playlist or EPG file changes.
// Remote sources are ignored; the scheduler covers those.
type Watcher struct {
	session  *Session
	logger   *slog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	targets map[string]struct{}
}

// NewWatcher creates a watcher for the session's local file sources.
func NewWatcher(session *Session, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		session:  session,
		logger:   logger,
		debounce: defaultDebounce,
		targets:  make(map[string]struct{}),
	}
}

// WithDebounce overrides the debounce interval.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Start begins watching the local files among the given sources. A no-op
// when every source is remote. The parent directories are registered
// rather than the files themselves so editors and atomic renames that
// replace the file keep producing events.
func (w *Watcher) Start(ctx context.Context, sources Sources) error {
	dirs := make(map[string]struct{})
	for _, source := range []string{sources.Playlist, sources.EPG} {
		if source == "" || urlutil.IsRemoteURL(source) {
			continue
		}
		path, err := urlutil.LocalPath(source)
		if err != nil {
			continue
		}
		path = filepath.Clean(path)
		w.targets[path] = struct{}{}
		dirs[filepath.Dir(path)] = struct{}{}
	}

	if len(w.targets) == 0 {
		w.logger.Debug("file watcher disabled, no local sources")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.watcher = watcher

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			w.watcher = nil
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	w.logger.Info("watching local sources", slog.Int("files", len(w.targets)))
	go w.loop(ctx, sources)
	return nil
}

func (w *Watcher) loop(ctx context.Context, sources Sources) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.targets[filepath.Clean(event.Name)]; !watched {
				continue
			}
			// Write covers in-place edits, Create covers atomic
			// replace-by-rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("source file changed",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.session.TriggerReload(ctx, sources)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop closes the watcher. Safe to call when Start was a no-op.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}
