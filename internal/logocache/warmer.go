package logocache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/tvgrid/internal/guide"
)

// SnapshotProvider exposes the live guide. *session.Session satisfies it.
type SnapshotProvider interface {
	Current() *guide.Snapshot
	Subscribe(ch chan<- *guide.Snapshot)
}

// Warmer prefetches every channel logo referenced by the active
// snapshot, so the first guide render never waits on image downloads.
type Warmer struct {
	cache       *Cache
	snapshots   SnapshotProvider
	concurrency int
	logger      *slog.Logger
}

// NewWarmer creates a Warmer. concurrency bounds in-flight downloads.
func NewWarmer(cache *Cache, snapshots SnapshotProvider, concurrency int, logger *slog.Logger) *Warmer {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{
		cache:       cache,
		snapshots:   snapshots,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run warms the cache for the current snapshot and again on every
// activation, until ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) error {
	updates := make(chan *guide.Snapshot, 1)
	w.snapshots.Subscribe(updates)

	if snap := w.snapshots.Current(); snap != nil {
		w.warmSnapshot(ctx, snap)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			w.warmSnapshot(ctx, snap)
		}
	}
}

func (w *Warmer) warmSnapshot(ctx context.Context, snap *guide.Snapshot) {
	urls := snapshotLogoURLs(snap)
	if len(urls) == 0 {
		return
	}

	start := time.Now()
	result := w.cache.Warm(ctx, urls, w.concurrency)
	w.logger.Info("logo cache warmed",
		slog.Uint64("generation", snap.Generation()),
		slog.Int("requested", result.Requested),
		slog.Int("fetched", result.Fetched),
		slog.Int("hits", result.Hits),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)))
}

// snapshotLogoURLs collects the distinct logo URLs of a snapshot's
// channels, in playlist order.
func snapshotLogoURLs(snap *guide.Snapshot) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, ch := range snap.Channels() {
		if ch.LogoURL == "" {
			continue
		}
		if _, dup := seen[ch.LogoURL]; dup {
			continue
		}
		seen[ch.LogoURL] = struct{}{}
		urls = append(urls, ch.LogoURL)
	}
	return urls
}

// Warm fetches every URL not yet cached, with at most limit downloads in
// flight. A dead logo URL is logged and skipped; it must not block the
// rest of the batch.
func (c *Cache) Warm(ctx context.Context, urls []string, limit int) WarmResult {
	if limit < 1 {
		limit = 1
	}

	var (
		mu     sync.Mutex
		result = WarmResult{Requested: len(urls)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, logoURL := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			cached := c.Contains(logoURL)
			_, err := c.Get(ctx, logoURL)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				c.logger.Debug("logo warm failed", slog.String("url", logoURL), slog.String("error", err.Error()))
			case cached:
				result.Hits++
			default:
				result.Fetched++
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}
