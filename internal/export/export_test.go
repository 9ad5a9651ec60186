package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/testutil"
	"github.com/jmylchreest/tvgrid/pkg/m3u"
	"github.com/jmylchreest/tvgrid/pkg/xmltv"
)

type staticProvider struct {
	mu   sync.Mutex
	snap *guide.Snapshot
	subs []chan<- *guide.Snapshot
}

func (p *staticProvider) Current() *guide.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *staticProvider) Subscribe(ch chan<- *guide.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, ch)
}

func (p *staticProvider) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- p.snap:
		default:
		}
	}
}

type staticFavorites struct {
	favs []*models.Favorite
	err  error
}

func (f *staticFavorites) GetAll(_ context.Context) ([]*models.Favorite, error) {
	return f.favs, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureSnapshot() *guide.Snapshot {
	channels := []testutil.SampleChannel{
		{TvgID: "news.one", Name: "NewsFirst One", Number: 101, Group: "News", Logo: "https://logos.example.com/news1.png", StreamURL: "http://stream.example.com/news1"},
		{TvgID: "sports.hd", Name: "SportsCentral HD", Number: 102, Group: "Sports", StreamURL: "http://stream.example.com/sports1"},
		{TvgID: "movies.max", Name: "CinemaMax", Number: 103, Group: "Movies", StreamURL: "http://stream.example.com/movies1"},
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	programs := []testutil.SampleProgram{
		{ChannelID: "news.one", Title: "Evening Edition", Start: base, Stop: base.Add(time.Hour)},
		{ChannelID: "news.one", Title: "World Tonight", Start: base.Add(time.Hour), Stop: base.Add(2 * time.Hour)},
		{ChannelID: "sports.hd", Title: "Match Day", Start: base, Stop: base.Add(2 * time.Hour)},
	}
	return testutil.Snapshot(3, channels, programs)
}

func newTestExporter(t *testing.T, favs FavoriteLister) (*Exporter, *staticProvider) {
	t.Helper()
	p := &staticProvider{snap: fixtureSnapshot()}
	if favs == nil {
		favs = &staticFavorites{}
	}
	return New(p, favs, t.TempDir(), discardLogger()), p
}

func TestWriteM3U_AllChannels(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	var buf bytes.Buffer
	count, err := e.WriteM3U(context.Background(), &buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	decoded, err := m3u.DecodeString(buf.String())
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 3)

	first := decoded.Entries[0]
	assert.Equal(t, "news.one", first.TvgID)
	assert.Equal(t, "NewsFirst One", first.Title)
	assert.Equal(t, "News", first.GroupTitle)
	assert.Equal(t, 101, first.ChannelNumber)
	assert.Equal(t, "http://stream.example.com/news1", first.URL)
}

func TestWriteM3U_TvgURL(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	var buf bytes.Buffer
	_, err := e.WriteM3U(context.Background(), &buf, Options{TvgURL: "http://example.com/guide.xml"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `url-tvg="http://example.com/guide.xml"`)
}

func TestWriteM3U_FavoritesOnly(t *testing.T) {
	favs := &staticFavorites{favs: []*models.Favorite{
		{ChannelID: "news.one", Name: "NewsFirst One", URL: "http://stream.example.com/news1"},
		// Re-keyed channel: the stored id no longer exists, URL still does.
		{ChannelID: "stale-id", Name: "CinemaMax", URL: "http://stream.example.com/movies1"},
	}}
	e, _ := newTestExporter(t, favs)

	var buf bytes.Buffer
	count, err := e.WriteM3U(context.Background(), &buf, Options{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	decoded, err := m3u.DecodeString(buf.String())
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "news.one", decoded.Entries[0].TvgID)
	assert.Equal(t, "movies.max", decoded.Entries[1].TvgID)
}

func TestWriteM3U_FavoritesError(t *testing.T) {
	e, _ := newTestExporter(t, &staticFavorites{err: errors.New("db down")})

	var buf bytes.Buffer
	_, err := e.WriteM3U(context.Background(), &buf, Options{FavoritesOnly: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading favorites")
}

func TestWriteXMLTV(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	var buf bytes.Buffer
	programmes, err := e.WriteXMLTV(context.Background(), &buf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, programmes)

	decoded, err := xmltv.DecodeString(buf.String())
	require.NoError(t, err)
	// All channels are declared, including the one with no schedule.
	assert.Len(t, decoded.Channels, 3)
	assert.Len(t, decoded.Programmes, 3)

	byChannel := make(map[string]int)
	for _, prog := range decoded.Programmes {
		byChannel[prog.Channel]++
	}
	assert.Equal(t, 2, byChannel["news.one"])
	assert.Equal(t, 1, byChannel["sports.hd"])
	assert.Zero(t, byChannel["movies.max"])
}

func TestWriteXMLTV_FavoritesOnly(t *testing.T) {
	favs := &staticFavorites{favs: []*models.Favorite{
		{ChannelID: "news.one", Name: "NewsFirst One", URL: "http://stream.example.com/news1"},
	}}
	e, _ := newTestExporter(t, favs)

	var buf bytes.Buffer
	programmes, err := e.WriteXMLTV(context.Background(), &buf, Options{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, programmes)

	decoded, err := xmltv.DecodeString(buf.String())
	require.NoError(t, err)
	assert.Len(t, decoded.Channels, 1)
	assert.Len(t, decoded.Programmes, 2)
}

func TestExportM3U_File(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	path, err := e.ExportM3U(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.Dir(), PlaylistFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := m3u.DecodeString(string(data))
	require.NoError(t, err)
	assert.Len(t, decoded.Entries, 3)
}

func TestExportM3U_FavoritesFile(t *testing.T) {
	favs := &staticFavorites{favs: []*models.Favorite{
		{ChannelID: "sports.hd", Name: "SportsCentral HD", URL: "http://stream.example.com/sports1"},
	}}
	e, _ := newTestExporter(t, favs)

	path, err := e.ExportM3U(context.Background(), Options{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.Dir(), FavoritesPlaylistFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := m3u.DecodeString(string(data))
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, "sports.hd", decoded.Entries[0].TvgID)
}

func TestExportXMLTV_File(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	path, err := e.ExportXMLTV(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.Dir(), GuideFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := xmltv.DecodeString(string(data))
	require.NoError(t, err)
	assert.Len(t, decoded.Programmes, 3)
}

func TestExportAll(t *testing.T) {
	e, _ := newTestExporter(t, nil)

	// Twice: the second run atomically replaces the first.
	require.NoError(t, e.ExportAll(context.Background()))
	require.NoError(t, e.ExportAll(context.Background()))

	for _, name := range []string{PlaylistFile, FavoritesPlaylistFile, GuideFile} {
		_, err := os.Stat(filepath.Join(e.Dir(), name))
		assert.NoError(t, err, "expected export file %s", name)
	}

	data, err := os.ReadFile(filepath.Join(e.Dir(), PlaylistFile))
	require.NoError(t, err)
	decoded, err := m3u.DecodeString(string(data))
	require.NoError(t, err)
	assert.Len(t, decoded.Entries, 3)
}

func TestRun_RefreshesOnUpdate(t *testing.T) {
	e, p := newTestExporter(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	exportPath := filepath.Join(e.Dir(), PlaylistFile)
	require.Eventually(t, func() bool {
		p.notify()
		_, err := os.Stat(exportPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
