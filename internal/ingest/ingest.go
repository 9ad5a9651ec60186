// Package ingest loads playlist and EPG sources and maps them into the
// guide's input form. Failures are classified for the reload taxonomy:
// a source that cannot be opened or fetched is SourceUnavailable, content
// that is not M3U or XMLTV at all is FormatUnrecognized, and individual
// malformed records are skipped and counted by the parsers.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/urlutil"
	"github.com/jmylchreest/tvgrid/pkg/httpclient"
)

// Loader fetches and parses playlist and EPG sources.
type Loader struct {
	fetcher *urlutil.ResourceFetcher
	logger  *slog.Logger
}

// NewLoader creates a loader that fetches remote sources with the given
// HTTP client configuration.
func NewLoader(cfg httpclient.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fetcher: urlutil.NewResourceFetcher(cfg),
		logger:  logger,
	}
}

// WithFetcher replaces the resource fetcher, sharing an existing HTTP
// client and its circuit breaker.
func (l *Loader) WithFetcher(f *urlutil.ResourceFetcher) *Loader {
	l.fetcher = f
	return l
}

// open resolves a source string to a readable stream. A failure here means
// the content was never seen, so it is classified as SourceUnavailable.
func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	rc, err := l.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return rc, nil
}
