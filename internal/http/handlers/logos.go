package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/pkg/format"
)

// LogoHandler serves cached channel logos and cache statistics.
type LogoHandler struct {
	cache  *logocache.Cache
	logger *slog.Logger
}

// NewLogoHandler creates a new logo handler.
func NewLogoHandler(cache *logocache.Cache) *LogoHandler {
	return &LogoHandler{
		cache:  cache,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *LogoHandler) WithLogger(logger *slog.Logger) *LogoHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// RegisterFileServer registers the logo image route.
// Routes:
//   - GET /logos/{filename} - Serve a cached logo image
func (h *LogoHandler) RegisterFileServer(router chi.Router) {
	router.Get("/logos/{filename}", h.serveLogo)
}

// Register registers the logo API routes.
func (h *LogoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLogoCacheStats",
		Method:      "GET",
		Path:        "/api/v1/logos/stats",
		Summary:     "Logo cache statistics",
		Description: "Returns entry count and disk usage of the logo cache",
		Tags:        []string{"Logos"},
	}, h.GetStats)
}

// serveLogo serves a cached logo image. Logos are content-addressed by
// URL hash, so a cached file never changes and clients may cache it
// indefinitely.
func (h *LogoHandler) serveLogo(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	id := strings.TrimSuffix(filename, filepath.Ext(filename))
	if id == "" {
		http.Error(w, "invalid logo filename", http.StatusBadRequest)
		return
	}

	reader, entry, err := h.cache.Open(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "logo not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "opening cached logo",
			slog.String("id", id),
			slog.Any("error", err),
		)
		http.Error(w, "failed to read logo", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	contentType := entry.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if entry.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(entry.FileSize, 10))
	}

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.ErrorContext(r.Context(), "serving cached logo",
			slog.String("id", id),
			slog.Any("error", err),
		)
	}
}

// LogoStatsOutput is the output for the logo cache statistics.
type LogoStatsOutput struct {
	Body struct {
		Success    bool   `json:"success"`
		Entries    int    `json:"entries"`
		TotalBytes int64  `json:"total_bytes"`
		TotalSize  string `json:"total_size"`
		Dir        string `json:"dir"`
	}
}

// GetStats returns logo cache statistics.
func (h *LogoHandler) GetStats(ctx context.Context, _ *struct{}) (*LogoStatsOutput, error) {
	stats := h.cache.Stats()

	resp := &LogoStatsOutput{}
	resp.Body.Success = true
	resp.Body.Entries = stats.Entries
	resp.Body.TotalBytes = stats.TotalBytes
	resp.Body.TotalSize = format.Bytes(stats.TotalBytes)
	resp.Body.Dir = h.cache.Dir()
	return resp, nil
}
