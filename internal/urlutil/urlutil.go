// Package urlutil provides URL classification, credential redaction, and a
// unified fetcher for remote URLs and local paths.
package urlutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jmylchreest/tvgrid/pkg/httpclient"
)

// URL scheme constants.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
)

// IsRemoteURL reports whether a source string is a remote URL that must be
// fetched over HTTP. Returns false for local paths and file:// URLs.
func IsRemoteURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// IsFileURL reports whether a source string uses the file:// scheme.
func IsFileURL(u string) bool {
	return strings.HasPrefix(u, "file://")
}

// GetScheme returns the scheme of a URL (http, https, file) or empty string
// for plain paths and unparsable input.
func GetScheme(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}

// LocalPath resolves a source string to a filesystem path. Plain paths are
// returned as-is; file:// URLs are unwrapped. Returns an error for remote
// URLs.
func LocalPath(source string) (string, error) {
	if IsRemoteURL(source) {
		return "", fmt.Errorf("not a local source: %s", Redact(source))
	}
	if !IsFileURL(source) {
		return source, nil
	}
	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid file URL: %w", err)
	}
	if parsed.Path == "" {
		return "", fmt.Errorf("empty path in file URL")
	}
	return parsed.Path, nil
}

// Redact strips userinfo and query values from a URL for logging. IPTV
// provider URLs routinely carry credentials in both places. Plain paths are
// returned unchanged.
func Redact(source string) string {
	if !IsRemoteURL(source) {
		return source
	}
	parsed, err := url.Parse(source)
	if err != nil {
		return "<unparsable url>"
	}
	if parsed.User != nil {
		parsed.User = url.User("xxxxx")
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for key := range q {
			q.Set(key, "xxxxx")
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

// ResourceFetcher provides a unified interface for reading playlist, EPG,
// and logo sources from HTTP/HTTPS URLs, file:// URLs, and local paths.
type ResourceFetcher struct {
	httpClient *httpclient.Client
}

// NewResourceFetcher creates a ResourceFetcher using the given HTTP client
// config.
func NewResourceFetcher(cfg httpclient.Config) *ResourceFetcher {
	return &ResourceFetcher{httpClient: httpclient.New(cfg)}
}

// NewResourceFetcherWithClient creates a ResourceFetcher around an existing
// client, sharing its circuit breaker.
func NewResourceFetcherWithClient(client *httpclient.Client) *ResourceFetcher {
	return &ResourceFetcher{httpClient: client}
}

// Fetch retrieves content from a remote URL, a file:// URL, or a local path.
// The returned reader must be closed by the caller.
func (f *ResourceFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	if IsRemoteURL(source) {
		return f.fetchHTTP(ctx, source)
	}
	return f.fetchFile(source)
}

func (f *ResourceFetcher) fetchHTTP(ctx context.Context, u string) (io.ReadCloser, error) {
	resp, err := f.httpClient.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", Redact(u), err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status code %d", Redact(u), resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *ResourceFetcher) fetchFile(source string) (io.ReadCloser, error) {
	path, err := LocalPath(source)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return file, nil
}

// ValidateSource checks that a source string is usable: a well-formed
// http(s) URL, or a local path / file:// URL pointing at an existing file.
func ValidateSource(source string) error {
	if source == "" {
		return fmt.Errorf("source is required")
	}
	if IsRemoteURL(source) {
		if _, err := url.Parse(source); err != nil {
			return fmt.Errorf("invalid URL format: %w", err)
		}
		return nil
	}
	path, err := LocalPath(source)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}
	return nil
}
