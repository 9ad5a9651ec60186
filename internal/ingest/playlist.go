package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/pkg/m3u"
)

// PlaylistResult is a parsed playlist mapped to guide channels.
type PlaylistResult struct {
	Channels []*guide.Channel

	// TvgURL is the EPG source advertised by the playlist header
	// (url-tvg attribute), if any.
	TvgURL string

	// Malformed counts playlist records that were skipped.
	Malformed int
}

// LoadPlaylist fetches and parses an M3U source. Compressed content
// (gzip, bzip2, xz) is detected and decompressed transparently.
func (l *Loader) LoadPlaylist(ctx context.Context, source string) (*PlaylistResult, error) {
	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return l.parsePlaylist(ctx, rc)
}

func (l *Loader) parsePlaylist(ctx context.Context, r io.Reader) (*PlaylistResult, error) {
	res := &PlaylistResult{}
	ids := make(map[string]int)

	parser := &m3u.Parser{
		OnHeader: func(h *m3u.Header) error {
			res.TvgURL = h.URLTvg
			return nil
		},
		OnEntry: func(e *m3u.Entry) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			res.Channels = append(res.Channels, entryToChannel(e, ids))
			return nil
		},
		OnError: func(line int, err error) {
			l.logger.Debug("skipping playlist record",
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
		},
	}

	stats, err := parser.ParseCompressed(r)
	if err != nil {
		if errors.Is(err, m3u.ErrInvalidFormat) {
			return nil, fmt.Errorf("%w: %v", models.ErrFormatUnrecognized, err)
		}
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}

	res.Malformed = stats.Malformed
	return res, nil
}

// entryToChannel maps a playlist entry onto a guide channel. The id is the
// declared tvg-id when present, otherwise derived from the stream URL.
// Repeats of an id get a numeric suffix so every emitted id is unique.
func entryToChannel(e *m3u.Entry, ids map[string]int) *guide.Channel {
	id := e.TvgID
	if id == "" {
		id = deriveID(e.URL)
	}
	ids[id]++
	if n := ids[id]; n > 1 {
		id = fmt.Sprintf("%s-%d", id, n)
	}

	return &guide.Channel{
		ID:        id,
		TvgID:     e.TvgID,
		Name:      channelName(e),
		Number:    e.ChannelNumber,
		Group:     e.GroupTitle,
		LogoURL:   e.TvgLogo,
		StreamURL: e.URL,
		Attrs:     e.Attrs,
	}
}

// channelName picks the display name: the EXTINF title, else tvg-name,
// else a name derived from the stream URL.
func channelName(e *m3u.Entry) string {
	if e.Title != "" {
		return e.Title
	}
	if e.TvgName != "" {
		return e.TvgName
	}
	return nameFromURL(e.URL)
}

// deriveID keys a channel by its stream URL when no tvg-id is declared.
// Twelve hex characters keep ids short enough for API paths.
func deriveID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// nameFromURL extracts a last-resort display name from the URL path.
func nameFromURL(url string) string {
	lastSlash := strings.LastIndex(url, "/")
	if lastSlash >= 0 && lastSlash < len(url)-1 {
		name := url[lastSlash+1:]
		if qMark := strings.Index(name, "?"); qMark > 0 {
			name = name[:qMark]
		}
		if dot := strings.LastIndex(name, "."); dot > 0 {
			name = name[:dot]
		}
		if name != "" {
			return name
		}
	}
	return "No Title"
}
