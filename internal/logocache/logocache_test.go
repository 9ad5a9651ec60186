package logocache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResponse struct {
	status      int
	contentType string
	body        []byte
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fetchResponse
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]fetchResponse),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) serve(url, contentType string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fetchResponse{status: http.StatusOK, contentType: contentType, body: body}
}

func (f *fakeFetcher) fail(url string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fetchResponse{status: status}
}

func (f *fakeFetcher) Get(_ context.Context, url string) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++

	r, ok := f.responses[url]
	if !ok {
		r = fetchResponse{status: http.StatusNotFound}
	}
	header := http.Header{}
	if r.contentType != "" {
		header.Set("Content-Type", r.contentType)
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(r.body)),
	}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func testGIF(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, fetcher Fetcher) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), fetcher, testLogger())
	require.NoError(t, err)
	return c
}

func TestGet_ConvertsJPEGToPNG(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.jpg", "image/jpeg", testJPEG(t, 32, 16))
	c := newTestCache(t, fetcher)

	entry, err := c.Get(context.Background(), "http://cdn.example.com/logo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/png", entry.ContentType)
	assert.Equal(t, 32, entry.Width)
	assert.Equal(t, 16, entry.Height)
	assert.Positive(t, entry.FileSize)

	data, err := os.ReadFile(c.Path(entry))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestGet_ConvertsGIFToPNG(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.gif", "image/gif", testGIF(t, 64, 32))
	c := newTestCache(t, fetcher)

	entry, err := c.Get(context.Background(), "http://cdn.example.com/logo.gif")
	require.NoError(t, err)
	assert.Equal(t, "image/png", entry.ContentType)
	assert.Equal(t, 64, entry.Width)
	assert.Equal(t, 32, entry.Height)
}

func TestGet_CachedHit(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.png", "image/png", testPNG(t, 8, 8))
	c := newTestCache(t, fetcher)

	first, err := c.Get(context.Background(), "http://cdn.example.com/logo.png")
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "http://cdn.example.com/logo.png")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fetcher.callCount("http://cdn.example.com/logo.png"))
}

func TestGet_URLVariantsShareEntry(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.png", "image/png", testPNG(t, 8, 8))
	c := newTestCache(t, fetcher)

	first, err := c.Get(context.Background(), "http://cdn.example.com/logo.png")
	require.NoError(t, err)

	// Same logo behind a different spelling: scheme, host casing, default port.
	second, err := c.Get(context.Background(), "HTTPS://CDN.example.com:443/logo.png")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Zero(t, fetcher.callCount("HTTPS://CDN.example.com:443/logo.png"))
	assert.Equal(t, 1, fetcher.totalCalls())
}

func TestGet_SVGPassthrough(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect width="4" height="4"/></svg>`)
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.svg", "image/svg+xml", svg)
	c := newTestCache(t, fetcher)

	entry, err := c.Get(context.Background(), "http://cdn.example.com/logo.svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", entry.ContentType)
	assert.Zero(t, entry.Width)

	path := c.Path(entry)
	assert.Equal(t, ".svg", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, svg, data)
}

func TestGet_HTTPError(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail("http://cdn.example.com/down.png", http.StatusInternalServerError)
	c := newTestCache(t, fetcher)

	_, err := c.Get(context.Background(), "http://cdn.example.com/down.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestGet_NotFound(t *testing.T) {
	c := newTestCache(t, newFakeFetcher())

	_, err := c.Get(context.Background(), "http://cdn.example.com/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestGet_InvalidImage(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/broken.png", "image/png", []byte("not an image"))
	c := newTestCache(t, fetcher)

	_, err := c.Get(context.Background(), "http://cdn.example.com/broken.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "converting logo")
}

func TestGet_EmptyURL(t *testing.T) {
	c := newTestCache(t, newFakeFetcher())

	_, err := c.Get(context.Background(), "")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.png", "image/png", testPNG(t, 8, 8))
	c := newTestCache(t, fetcher)

	entry, err := c.Get(context.Background(), "http://cdn.example.com/logo.png")
	require.NoError(t, err)

	rc, opened, err := c.Open(entry.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Same(t, entry, opened)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestOpen_UnknownID(t *testing.T) {
	c := newTestCache(t, newFakeFetcher())

	_, _, err := c.Open("deadbeef")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_RebuildsIndex(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/one.png", "image/png", testPNG(t, 8, 8))
	fetcher.serve("http://cdn.example.com/two.png", "image/png", testPNG(t, 4, 4))

	dir := t.TempDir()
	first, err := New(dir, fetcher, testLogger())
	require.NoError(t, err)
	_, err = first.Get(context.Background(), "http://cdn.example.com/one.png")
	require.NoError(t, err)
	_, err = first.Get(context.Background(), "http://cdn.example.com/two.png")
	require.NoError(t, err)

	// A fresh process over the same directory must serve from disk
	// without refetching anything.
	offline := newFakeFetcher()
	second, err := New(dir, offline, testLogger())
	require.NoError(t, err)
	stats, err := second.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.TotalBytes)

	entry, err := second.Get(context.Background(), "http://cdn.example.com/one.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", entry.ContentType)
	assert.Zero(t, offline.totalCalls())
}

func TestPrune(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/stale.png", "image/png", testPNG(t, 8, 8))
	fetcher.serve("http://cdn.example.com/fresh.png", "image/png", testPNG(t, 8, 8))
	c := newTestCache(t, fetcher)

	staleEntry, err := c.Get(context.Background(), "http://cdn.example.com/stale.png")
	require.NoError(t, err)
	freshEntry, err := c.Get(context.Background(), "http://cdn.example.com/fresh.png")
	require.NoError(t, err)

	staleEntry.LastSeenAt = time.Now().Add(-48 * time.Hour)

	result, err := c.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, staleEntry.FileSize, result.Freed)

	assert.Nil(t, c.ByID(staleEntry.ID))
	assert.NotNil(t, c.ByID(freshEntry.ID))
	_, err = os.Stat(c.Path(staleEntry))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(c.Path(freshEntry))
	assert.NoError(t, err)

	// The stale URL is a miss again and refetches.
	_, err = c.Get(context.Background(), "http://cdn.example.com/stale.png")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount("http://cdn.example.com/stale.png"))
}

func TestPrune_ZeroRetentionDisabled(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/logo.png", "image/png", testPNG(t, 8, 8))
	c := newTestCache(t, fetcher)

	entry, err := c.Get(context.Background(), "http://cdn.example.com/logo.png")
	require.NoError(t, err)
	entry.LastSeenAt = time.Now().Add(-365 * 24 * time.Hour)

	result, err := c.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
	assert.NotNil(t, c.ByID(entry.ID))
}

func TestStats(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("http://cdn.example.com/one.png", "image/png", testPNG(t, 8, 8))
	fetcher.serve("http://cdn.example.com/two.png", "image/png", testPNG(t, 4, 4))
	c := newTestCache(t, fetcher)

	assert.Zero(t, c.Stats().Entries)

	_, err := c.Get(context.Background(), "http://cdn.example.com/one.png")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "http://cdn.example.com/two.png")
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.TotalBytes)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips scheme", "http://cdn.example.com/logo.png", "cdn.example.com/logo.png"},
		{"https equivalent", "https://cdn.example.com/logo.png", "cdn.example.com/logo.png"},
		{"lowercases host", "http://CDN.Example.COM/Logo.png", "cdn.example.com/Logo.png"},
		{"strips default http port", "http://cdn.example.com:80/logo.png", "cdn.example.com/logo.png"},
		{"strips default https port", "https://cdn.example.com:443/logo.png", "cdn.example.com/logo.png"},
		{"keeps custom port", "http://cdn.example.com:8080/logo.png", "cdn.example.com:8080/logo.png"},
		{"sorts query params", "http://cdn.example.com/logo?b=2&a=1", "cdn.example.com/logo?a=1&b=2"},
		{"trims trailing slash", "http://cdn.example.com/logos/", "cdn.example.com/logos"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeURL(tt.input))
		})
	}
}
