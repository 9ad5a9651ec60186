// Package logocache stores channel logos on disk, keyed by a hash of
// their source URL. Logos are fetched once, converted to PNG, and served
// locally so guide consumers never hit the provider's image hosts.
package logocache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"

	// Register image format decoders
	_ "image/gif"
	_ "image/jpeg"

	// WebP support from x/image
	_ "golang.org/x/image/webp"
)

// Fetcher performs the logo download. *httpclient.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Entry is the metadata stored alongside each cached logo file.
//
// The ID is deterministic: a SHA256 hash of the normalized URL, so the
// same logo referenced by many channels is downloaded exactly once.
type Entry struct {
	ID            string    `json:"id"`
	OriginalURL   string    `json:"original_url"`
	NormalizedURL string    `json:"normalized_url,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	FileSize      int64     `json:"file_size,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// LastSeenAt is refreshed each time the logo URL appears in a loaded
	// playlist. Retention pruning works off this timestamp.
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
}

func newEntry(originalURL string) *Entry {
	normalized := normalizeURL(originalURL)
	now := time.Now().UTC()
	return &Entry{
		ID:            hashURL(normalized),
		OriginalURL:   originalURL,
		NormalizedURL: normalized,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
}

func (e *Entry) extension() string {
	if e.ContentType == "image/svg+xml" {
		return ".svg"
	}
	return ".png"
}

// Filename returns the file name a cached logo is served under.
func (e *Entry) Filename() string {
	return e.ID + e.extension()
}

// imagePath returns the relative path for the image file.
// First 2 characters of the hash shard the directory so a large cache
// does not pile every file into one dir.
func (e *Entry) imagePath() string {
	return filepath.Join(e.ID[:2], e.ID+e.extension())
}

func (e *Entry) metaPath() string {
	return filepath.Join(e.ID[:2], e.ID+".json")
}

// stale reports whether the entry has not been seen since cutoff.
// Entries without any timestamp are kept.
func (e *Entry) stale(cutoff time.Time) bool {
	if !e.LastSeenAt.IsZero() {
		return e.LastSeenAt.Before(cutoff)
	}
	if !e.CreatedAt.IsZero() {
		return e.CreatedAt.Before(cutoff)
	}
	return false
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// PruneResult reports what a retention pass removed.
type PruneResult struct {
	Removed int
	Freed   int64
}

// WarmResult reports the outcome of a prefetch pass.
type WarmResult struct {
	Requested int
	Fetched   int
	Hits      int
	Failed    int
}

// Cache is a disk-backed logo store with an in-memory index.
// Safe for concurrent use.
type Cache struct {
	dir    string
	client Fetcher
	logger *slog.Logger

	// flight collapses concurrent downloads of the same logo.
	flight singleflight.Group

	mu    sync.RWMutex
	byID  map[string]*Entry
	byURL map[string]*Entry
}

// New creates a Cache rooted at dir, creating it if needed.
func New(dir string, client Fetcher, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logo cache directory: %w", err)
	}
	return &Cache{
		dir:    dir,
		client: client,
		logger: logger,
		byID:   make(map[string]*Entry),
		byURL:  make(map[string]*Entry),
	}, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

// Load scans the cache directory and rebuilds the in-memory index from
// the metadata sidecars. Called once on startup. Unreadable sidecars are
// skipped, not fatal.
func (c *Cache) Load(ctx context.Context) (Stats, error) {
	var loaded []*Entry

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Debug("skipping unreadable logo metadata", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || len(entry.ID) < 2 {
			c.logger.Debug("skipping invalid logo metadata", slog.String("path", path))
			return nil
		}
		loaded = append(loaded, &entry)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scanning logo cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]*Entry, len(loaded))
	c.byURL = make(map[string]*Entry, len(loaded))
	stats := Stats{}
	for _, entry := range loaded {
		c.byID[entry.ID] = entry
		if entry.OriginalURL != "" {
			c.byURL[entry.OriginalURL] = entry
		}
		stats.Entries++
		stats.TotalBytes += entry.FileSize
	}

	c.logger.Info("loaded logo index",
		slog.Int("entries", stats.Entries),
		slog.Int64("total_bytes", stats.TotalBytes))
	return stats, nil
}

// Get returns the cached entry for logoURL, downloading it on a miss.
// Hits refresh LastSeenAt so retention keeps logos that are still
// referenced by the playlist.
func (c *Cache) Get(ctx context.Context, logoURL string) (*Entry, error) {
	if logoURL == "" {
		return nil, fmt.Errorf("empty logo URL")
	}

	if existing := c.lookup(logoURL); existing != nil {
		if err := c.Touch(existing); err != nil {
			c.logger.Warn("failed to touch logo", slog.String("url", logoURL), slog.String("error", err.Error()))
		}
		return existing, nil
	}

	id := hashURL(normalizeURL(logoURL))
	v, err, _ := c.flight.Do(id, func() (any, error) {
		// A concurrent flight may have stored it between lookup and here.
		if existing := c.lookup(logoURL); existing != nil {
			return existing, nil
		}
		return c.download(ctx, logoURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// lookup checks the index by exact URL, then by normalized hash so URL
// variants (scheme, casing, parameter order) share one cached file.
func (c *Cache) lookup(logoURL string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.byURL[logoURL]; ok {
		return entry
	}
	id := hashURL(normalizeURL(logoURL))
	if entry, ok := c.byID[id]; ok {
		// Index this variant for future exact lookups.
		c.byURL[logoURL] = entry
		return entry
	}
	return nil
}

func (c *Cache) download(ctx context.Context, logoURL string) (*Entry, error) {
	resp, err := c.client.Get(ctx, logoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching logo: HTTP %d", resp.StatusCode)
	}

	// Logos are small; the HTTP client already caps response size.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading logo body: %w", err)
	}

	contentType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])

	entry := newEntry(logoURL)
	if strings.EqualFold(contentType, "image/svg+xml") {
		// Vector graphics are stored as-is.
		entry.ContentType = "image/svg+xml"
	} else {
		converted, width, height, err := convertToPNG(body)
		if err != nil {
			return nil, fmt.Errorf("converting logo %s: %w", logoURL, err)
		}
		body = converted
		entry.ContentType = "image/png"
		entry.Width = width
		entry.Height = height
	}
	entry.FileSize = int64(len(body))

	if err := c.store(entry, body); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byID[entry.ID] = entry
	c.byURL[entry.OriginalURL] = entry
	c.mu.Unlock()

	c.logger.Debug("cached logo",
		slog.String("url", logoURL),
		slog.String("id", entry.ID),
		slog.Int64("bytes", entry.FileSize))
	return entry, nil
}

// store writes the image then its sidecar, both atomically. A sidecar
// failure removes the image so the cache never holds unindexed files.
func (c *Cache) store(entry *Entry, data []byte) error {
	imagePath := filepath.Join(c.dir, entry.imagePath())
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	if err := renameio.WriteFile(imagePath, data, 0o644); err != nil {
		return fmt.Errorf("writing logo image: %w", err)
	}
	if err := c.writeMeta(entry); err != nil {
		_ = os.Remove(imagePath)
		return err
	}
	return nil
}

func (c *Cache) writeMeta(entry *Entry) error {
	metaJSON, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling logo metadata: %w", err)
	}
	metaPath := filepath.Join(c.dir, entry.metaPath())
	if err := renameio.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing logo metadata: %w", err)
	}
	return nil
}

// Touch refreshes LastSeenAt on disk and in the index. The entry is
// marshaled under the index lock; concurrent touches of one entry must
// not observe a half-updated timestamp.
func (c *Cache) Touch(entry *Entry) error {
	c.mu.Lock()
	entry.LastSeenAt = time.Now().UTC()
	metaJSON, marshalErr := json.MarshalIndent(entry, "", "  ")
	c.mu.Unlock()
	if marshalErr != nil {
		return fmt.Errorf("marshaling logo metadata: %w", marshalErr)
	}
	metaPath := filepath.Join(c.dir, entry.metaPath())
	if err := renameio.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing logo metadata: %w", err)
	}
	return nil
}

// ByID returns the indexed entry for id, or nil.
func (c *Cache) ByID(id string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// Contains reports whether logoURL is already cached.
func (c *Cache) Contains(logoURL string) bool {
	return c.lookup(logoURL) != nil
}

// Cached returns the entry for logoURL if it is already cached. Unlike
// Get it never downloads and does not refresh LastSeenAt.
func (c *Cache) Cached(logoURL string) (*Entry, bool) {
	if logoURL == "" {
		return nil, false
	}
	entry := c.lookup(logoURL)
	return entry, entry != nil
}

// Open opens the image file for a cached logo id. The caller closes it.
func (c *Cache) Open(id string) (io.ReadCloser, *Entry, error) {
	entry := c.ByID(id)
	if entry == nil {
		return nil, nil, fmt.Errorf("logo %s: %w", id, os.ErrNotExist)
	}
	f, err := os.Open(filepath.Join(c.dir, entry.imagePath()))
	if err != nil {
		return nil, nil, fmt.Errorf("opening logo image: %w", err)
	}
	return f, entry, nil
}

// Path returns the absolute path of a cached logo image.
func (c *Cache) Path(entry *Entry) string {
	return filepath.Join(c.dir, entry.imagePath())
}

// Stats returns entry count and total stored bytes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := Stats{Entries: len(c.byID)}
	for _, entry := range c.byID {
		stats.TotalBytes += entry.FileSize
	}
	return stats
}

// Prune removes logos not seen within retention. Zero retention disables
// pruning.
func (c *Cache) Prune(ctx context.Context, retention time.Duration) (PruneResult, error) {
	result := PruneResult{}
	if retention <= 0 {
		return result, nil
	}
	cutoff := time.Now().Add(-retention)

	c.mu.Lock()
	var stale []*Entry
	for _, entry := range c.byID {
		if entry.stale(cutoff) {
			stale = append(stale, entry)
		}
	}
	for _, entry := range stale {
		delete(c.byID, entry.ID)
	}
	for rawURL, entry := range c.byURL {
		if _, live := c.byID[entry.ID]; !live {
			delete(c.byURL, rawURL)
		}
	}
	c.mu.Unlock()

	for _, entry := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := os.Remove(filepath.Join(c.dir, entry.imagePath())); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove stale logo", slog.String("id", entry.ID), slog.String("error", err.Error()))
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.metaPath())); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove stale logo metadata", slog.String("id", entry.ID), slog.String("error", err.Error()))
		}
		result.Removed++
		result.Freed += entry.FileSize
	}

	c.removeEmptyShards()

	if result.Removed > 0 {
		c.logger.Info("pruned stale logos",
			slog.Int("removed", result.Removed),
			slog.Int64("freed_bytes", result.Freed))
	}
	return result, nil
}

func (c *Cache) removeEmptyShards() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, d := range entries {
		if !d.IsDir() {
			continue
		}
		shard := filepath.Join(c.dir, d.Name())
		children, err := os.ReadDir(shard)
		if err != nil || len(children) > 0 {
			continue
		}
		// The shard may gain a file between ReadDir and Remove; the
		// failed Remove is then correct and ignored.
		_ = os.Remove(shard)
	}
}

// convertToPNG decodes image data in any registered format and
// re-encodes it as PNG.
func convertToPNG(data []byte) ([]byte, int, int, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decoding image (format=%s): %w", format, err)
	}

	bounds := img.Bounds()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("encoding to PNG: %w", err)
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// normalizeURL normalizes a URL for consistent hashing so equivalent
// URLs produce the same hash:
//   - scheme removed (http/https treated as equivalent)
//   - hostname lowercased, default ports removed
//   - query parameters sorted
//   - trailing slash trimmed
func normalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")

	path := strings.TrimSuffix(parsed.Path, "/")

	query := parsed.Query()
	params := make([]string, 0, len(query))
	for key, vals := range query {
		for _, val := range vals {
			params = append(params, key+"="+val)
		}
	}
	sort.Strings(params)

	result := host + path
	if len(params) > 0 {
		result += "?" + strings.Join(params, "&")
	}
	return result
}

func hashURL(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
