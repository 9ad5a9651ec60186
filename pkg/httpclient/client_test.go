package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.RetryMaxDelay = 20 * time.Millisecond
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("with default config", func(t *testing.T) {
		client := NewWithDefaults()
		assert.NotNil(t, client)
		assert.NotNil(t, client.client)
		assert.NotNil(t, client.breaker)
		assert.NotNil(t, client.logger)
	})

	t.Run("with custom config", func(t *testing.T) {
		cfg := Config{
			Timeout:          10 * time.Second,
			RetryAttempts:    5,
			CircuitThreshold: 10,
		}
		client := New(cfg)
		assert.NotNil(t, client)
		assert.Equal(t, 5, client.config.RetryAttempts)
		assert.Equal(t, 10, client.config.CircuitThreshold)
	})

	t.Run("with custom base client", func(t *testing.T) {
		baseClient := &http.Client{Timeout: 5 * time.Second}
		cfg := DefaultConfig()
		cfg.BaseClient = baseClient
		client := New(cfg)
		assert.Equal(t, baseClient, client.client)
	})
}

func TestClient_Get(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("#EXTM3U\n"))
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "#EXTM3U\n", string(body))
	})

	t.Run("sets user agent header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get(HeaderUserAgent), "tvgrid")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	})

	t.Run("sets accept encoding header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acceptEncoding := r.Header.Get(HeaderAcceptEncoding)
			assert.Contains(t, acceptEncoding, "gzip")
			assert.Contains(t, acceptEncoding, "deflate")
			assert.Contains(t, acceptEncoding, "br")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	})

	t.Run("invalid url", func(t *testing.T) {
		client := New(testConfig())
		_, err := client.Get(context.Background(), "http://[::1]:namedport")
		assert.Error(t, err)
	})
}

func TestClient_Retries(t *testing.T) {
	t.Run("retries on 503 then succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count := atomic.AddInt32(&attempts, 1)
			if count < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("success"))
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.RetryAttempts = 3
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	})

	t.Run("does not retry on 404", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.RetryAttempts = 3
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.RetryAttempts = 2
		client := New(cfg)

		_, err := client.Get(context.Background(), server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.RetryAttempts = 5
		cfg.RetryDelay = 50 * time.Millisecond
		client := New(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := client.Get(ctx, server.URL)
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestClient_Decompression(t *testing.T) {
	const payload = "#EXTM3U\n#EXTINF:-1,Channel One\nhttp://example.com/one\n"

	t.Run("gzip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingGzip)
			gz := gzip.NewWriter(w)
			gz.Write([]byte(payload))
			gz.Close()
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
	})

	t.Run("deflate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingDeflate)
			fw, _ := flate.NewWriter(w, flate.DefaultCompression)
			fw.Write([]byte(payload))
			fw.Close()
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
	})

	t.Run("brotli", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingBrotli)
			bw := brotli.NewWriter(w)
			bw.Write([]byte(payload))
			bw.Close()
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
	})

	t.Run("disabled leaves body untouched", func(t *testing.T) {
		var compressed strings.Builder
		gz := gzip.NewWriter(&compressed)
		gz.Write([]byte(payload))
		gz.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingGzip)
			io.WriteString(w, compressed.String())
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.EnableDecompression = false
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, compressed.String(), string(body))
	})
}

func TestClient_MaxResponseSize(t *testing.T) {
	t.Run("rejects oversized body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("x", 2048)))
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.MaxResponseSize = 1024
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		_, err = io.ReadAll(resp.Body)
		assert.ErrorIs(t, err, ErrResponseTooLarge)
	})

	t.Run("limit applies after decompression", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingGzip)
			gz := gzip.NewWriter(w)
			gz.Write([]byte(strings.Repeat("a", 64*1024)))
			gz.Close()
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.MaxResponseSize = 1024
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		_, err = io.ReadAll(resp.Body)
		assert.ErrorIs(t, err, ErrResponseTooLarge)
	})

	t.Run("body at the limit passes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("x", 512)))
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.MaxResponseSize = 512
		client := New(cfg)

		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Len(t, body, 512)
	})
}

func TestClient_AcceptableStatusCodes(t *testing.T) {
	t.Run("404 acceptable for logo-style client", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
		client := New(cfg)

		for i := 0; i < 3; i++ {
			resp, err := client.Get(context.Background(), server.URL)
			require.NoError(t, err)
			resp.Body.Close()
		}

		assert.Equal(t, CircuitClosed, client.CircuitState())
		assert.Equal(t, 0, client.breaker.Failures())
		assert.Equal(t, int64(3), client.Stats().TotalSuccesses)
	})

	t.Run("404 counts as failure by default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := New(testConfig())
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, 1, client.breaker.Failures())
		assert.Equal(t, int64(1), client.Stats().ErrorCounts.ClientError4xx)
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Run("opens after repeated failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.RetryAttempts = 0
		cfg.CircuitThreshold = 3
		client := New(cfg)

		for i := 0; i < 3; i++ {
			resp, err := client.Get(context.Background(), server.URL)
			require.NoError(t, err)
			resp.Body.Close()
		}

		assert.Equal(t, CircuitOpen, client.CircuitState())

		// While open, requests are rejected without hitting the server.
		_, err := client.Get(context.Background(), server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)

		client.ResetCircuit()
		assert.Equal(t, CircuitClosed, client.CircuitState())
	})

	t.Run("shared breaker couples clients", func(t *testing.T) {
		breaker := NewCircuitBreaker(2, time.Minute, 1)
		a := NewWithBreaker(testConfig(), breaker)
		b := NewWithBreaker(testConfig(), breaker)

		breaker.RecordFailure()
		breaker.RecordFailure()

		assert.Equal(t, CircuitOpen, a.CircuitState())
		assert.Equal(t, CircuitOpen, b.CircuitState())
	})
}

func TestClient_StandardClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get(HeaderUserAgent), "tvgrid")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	std := New(testConfig()).StandardClient()
	resp, err := std.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, ErrorCategoryTimeout, categorizeError(context.DeadlineExceeded))
	assert.Equal(t, ErrorCategoryNetworkError, categorizeError(io.ErrUnexpectedEOF))
}
