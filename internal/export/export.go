// Package export renders the live guide back out as M3U playlists and
// XMLTV documents. Renderers stream to any writer so HTTP handlers can
// serve them directly; file exports go through an atomic replace so a
// consumer polling the export directory never reads a half-written file.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/pkg/m3u"
	"github.com/jmylchreest/tvgrid/pkg/xmltv"
)

// File names inside the export directory.
const (
	PlaylistFile          = "playlist.m3u"
	FavoritesPlaylistFile = "favorites.m3u"
	GuideFile             = "guide.xml"
)

// SnapshotProvider yields the live guide snapshot and announces swaps.
type SnapshotProvider interface {
	Current() *guide.Snapshot
	Subscribe(ch chan<- *guide.Snapshot)
}

// FavoriteLister is the slice of the favorites store an export needs.
type FavoriteLister interface {
	GetAll(ctx context.Context) ([]*models.Favorite, error)
}

// Options select what an export includes.
type Options struct {
	// FavoritesOnly restricts the export to starred channels.
	FavoritesOnly bool

	// TvgURL is advertised on the playlist header via url-tvg so players
	// can discover the matching guide export.
	TvgURL string
}

// Exporter renders guide snapshots. File exports land in the export
// directory; the streaming renderers take any writer.
type Exporter struct {
	snapshots SnapshotProvider
	favorites FavoriteLister
	dir       string
	logger    *slog.Logger
}

// New creates an exporter writing file exports under dir.
func New(snapshots SnapshotProvider, favorites FavoriteLister, dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		snapshots: snapshots,
		favorites: favorites,
		dir:       dir,
		logger:    logger,
	}
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// channels resolves the channel list an export covers, in playlist
// order. Favorites membership matches by channel id, falling back to
// stream URL for channels a reload re-keyed.
func (e *Exporter) channels(ctx context.Context, snap *guide.Snapshot, opts Options) ([]*guide.Channel, error) {
	all := snap.Channels()
	if !opts.FavoritesOnly {
		return all, nil
	}

	favs, err := e.favorites.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}
	byID := make(map[string]struct{}, len(favs))
	byURL := make(map[string]struct{}, len(favs))
	for _, f := range favs {
		byID[f.ChannelID] = struct{}{}
		byURL[f.URL] = struct{}{}
	}

	var out []*guide.Channel
	for _, ch := range all {
		if _, ok := byID[ch.ID]; ok {
			out = append(out, ch)
			continue
		}
		if _, ok := byURL[ch.StreamURL]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

// WriteM3U renders the selected channels as an extended M3U playlist and
// returns how many channels it wrote. The tvg-id attribute carries the
// snapshot's canonical channel id, so the playlist and guide exports
// always agree, including for channels whose feed declared no tvg-id.
func (e *Exporter) WriteM3U(ctx context.Context, w io.Writer, opts Options) (int, error) {
	snap := e.snapshots.Current()
	chans, err := e.channels(ctx, snap, opts)
	if err != nil {
		return 0, err
	}

	mw := m3u.NewWriter(w)
	mw.SetTvgURL(opts.TvgURL)
	if err := mw.WriteHeader(); err != nil {
		return 0, err
	}
	for _, ch := range chans {
		entry := &m3u.Entry{
			Duration:      -1,
			TvgID:         ch.ID,
			TvgName:       ch.Name,
			TvgLogo:       ch.LogoURL,
			GroupTitle:    ch.Group,
			ChannelNumber: ch.Number,
			Title:         ch.Name,
			URL:           ch.StreamURL,
			Attrs:         ch.Attrs,
		}
		if err := mw.WriteEntry(entry); err != nil {
			return 0, fmt.Errorf("writing channel %s: %w", ch.ID, err)
		}
	}
	return len(chans), nil
}

// WriteXMLTV renders the guide for the selected channels and returns how
// many programmes it wrote. Programmes are keyed by canonical channel id
// to match the playlist export; channels bound to the same EPG schedule
// each get their own copy.
func (e *Exporter) WriteXMLTV(ctx context.Context, w io.Writer, opts Options) (int, error) {
	snap := e.snapshots.Current()
	chans, err := e.channels(ctx, snap, opts)
	if err != nil {
		return 0, err
	}

	xw := xmltv.NewWriter(w)
	if err := xw.WriteHeader(); err != nil {
		return 0, err
	}

	for _, ch := range chans {
		xc := &xmltv.Channel{
			ID:           ch.ID,
			DisplayNames: []string{ch.Name},
			Icon:         ch.LogoURL,
		}
		if err := xw.WriteChannel(xc); err != nil {
			return 0, fmt.Errorf("writing channel %s: %w", ch.ID, err)
		}
	}

	programmes := 0
	for _, ch := range chans {
		sched, ok := snap.Schedule(ch.ID)
		if !ok {
			continue
		}
		for _, p := range sched.Programs() {
			prog := &xmltv.Programme{
				Channel:     ch.ID,
				Start:       p.Start,
				Stop:        p.End,
				Title:       p.Title,
				SubTitle:    p.SubTitle,
				Description: p.Description,
				Category:    p.Category,
				Icon:        p.Icon,
				EpisodeNum:  p.EpisodeNum,
				Rating:      p.Rating,
			}
			if err := xw.WriteProgramme(prog); err != nil {
				return programmes, fmt.Errorf("writing programme for %s: %w", ch.ID, err)
			}
			programmes++
		}
	}

	if err := xw.WriteFooter(); err != nil {
		return programmes, err
	}
	return programmes, nil
}

// ExportM3U writes the playlist export file and returns its path.
func (e *Exporter) ExportM3U(ctx context.Context, opts Options) (string, error) {
	name := PlaylistFile
	if opts.FavoritesOnly {
		name = FavoritesPlaylistFile
	}
	path := filepath.Join(e.dir, name)

	var count int
	err := e.writeAtomic(path, func(w io.Writer) error {
		var err error
		count, err = e.WriteM3U(ctx, w, opts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("exporting playlist: %w", err)
	}

	e.logger.Debug("playlist exported",
		slog.String("path", path),
		slog.Int("channels", count),
		slog.Bool("favorites_only", opts.FavoritesOnly),
	)
	return path, nil
}

// ExportXMLTV writes the guide export file and returns its path.
func (e *Exporter) ExportXMLTV(ctx context.Context, opts Options) (string, error) {
	path := filepath.Join(e.dir, GuideFile)

	var programmes int
	err := e.writeAtomic(path, func(w io.Writer) error {
		var err error
		programmes, err = e.WriteXMLTV(ctx, w, opts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("exporting guide: %w", err)
	}

	e.logger.Debug("guide exported",
		slog.String("path", path),
		slog.Int("programmes", programmes),
	)
	return path, nil
}

// ExportAll writes the full file set: playlist, favorites playlist, and
// guide.
func (e *Exporter) ExportAll(ctx context.Context) error {
	start := time.Now()
	if _, err := e.ExportM3U(ctx, Options{}); err != nil {
		return err
	}
	if _, err := e.ExportM3U(ctx, Options{FavoritesOnly: true}); err != nil {
		return err
	}
	if _, err := e.ExportXMLTV(ctx, Options{}); err != nil {
		return err
	}

	e.logger.Info("exports refreshed",
		slog.Uint64("generation", e.snapshots.Current().Generation()),
		slog.String("dir", e.dir),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Run re-exports the file set each time a new snapshot activates, until
// ctx is cancelled. Exports always render Current(), so an update lost
// to a full notification channel is covered by the next one.
func (e *Exporter) Run(ctx context.Context) error {
	updates := make(chan *guide.Snapshot, 1)
	e.snapshots.Subscribe(updates)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
			if err := e.ExportAll(ctx); err != nil {
				e.logger.Error("export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// writeAtomic renders into a pending file and atomically replaces path.
// renameio fsyncs before the rename, so a crash leaves either the old
// complete file or the new one.
func (e *Exporter) writeAtomic(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("creating pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			e.logger.Debug("cleaning up pending export", slog.String("error", err.Error()))
		}
	}()

	if err := render(pending); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
