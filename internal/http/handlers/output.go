package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/tvgrid/internal/export"
)

// OutputHandler serves the generated M3U and XMLTV files. Output is
// rendered from the current snapshot on every request, so a download
// started before a reload finishes still gets one consistent
// generation.
type OutputHandler struct {
	exporter *export.Exporter
	logger   *slog.Logger
}

// NewOutputHandler creates a new output handler.
func NewOutputHandler(exporter *export.Exporter) *OutputHandler {
	return &OutputHandler{
		exporter: exporter,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *OutputHandler) WithLogger(logger *slog.Logger) *OutputHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// RegisterFileServer registers the raw download routes. These stream
// straight to the client and take precedence over the Register
// variants when both are wired.
// Routes:
//   - GET /export/playlist.m3u - all channels
//   - GET /export/favorites.m3u - starred channels only
//   - GET /export/guide.xml - XMLTV guide
func (h *OutputHandler) RegisterFileServer(router chi.Router) {
	router.Get("/export/"+export.PlaylistFile, h.servePlaylist)
	router.Get("/export/"+export.FavoritesPlaylistFile, h.serveFavorites)
	router.Get("/export/"+export.GuideFile, h.serveGuide)
}

// Register registers the download endpoints with the API for OpenAPI
// documentation.
func (h *OutputHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getPlaylistM3U",
		Method:      "GET",
		Path:        "/export/" + export.PlaylistFile,
		Summary:     "Download M3U playlist",
		Description: "Returns the current playlist as an extended M3U file",
		Tags:        []string{"Export"},
	}, h.GetPlaylist)

	huma.Register(api, huma.Operation{
		OperationID: "getFavoritesM3U",
		Method:      "GET",
		Path:        "/export/" + export.FavoritesPlaylistFile,
		Summary:     "Download favorites M3U playlist",
		Description: "Returns the starred channels as an extended M3U file",
		Tags:        []string{"Export"},
	}, h.GetFavorites)

	huma.Register(api, huma.Operation{
		OperationID: "getGuideXMLTV",
		Method:      "GET",
		Path:        "/export/" + export.GuideFile,
		Summary:     "Download XMLTV guide",
		Description: "Returns the programme guide for the playlist channels as XMLTV",
		Tags:        []string{"Export"},
	}, h.GetGuide)
}

// FileOutput is the output for a generated download.
type FileOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetPlaylist returns the generated M3U playlist (Huma handler for OpenAPI).
func (h *OutputHandler) GetPlaylist(ctx context.Context, _ *struct{}) (*FileOutput, error) {
	return h.renderM3U(ctx, export.Options{})
}

// GetFavorites returns the favorites-only M3U playlist (Huma handler for OpenAPI).
func (h *OutputHandler) GetFavorites(ctx context.Context, _ *struct{}) (*FileOutput, error) {
	return h.renderM3U(ctx, export.Options{FavoritesOnly: true})
}

// GetGuide returns the XMLTV guide (Huma handler for OpenAPI).
func (h *OutputHandler) GetGuide(ctx context.Context, _ *struct{}) (*FileOutput, error) {
	var buf bytes.Buffer
	if _, err := h.exporter.WriteXMLTV(ctx, &buf, export.Options{}); err != nil {
		return nil, huma.Error500InternalServerError("failed to render XMLTV guide", err)
	}
	return &FileOutput{
		ContentType: "application/xml",
		Body:        buf.Bytes(),
	}, nil
}

func (h *OutputHandler) renderM3U(ctx context.Context, opts export.Options) (*FileOutput, error) {
	var buf bytes.Buffer
	if _, err := h.exporter.WriteM3U(ctx, &buf, opts); err != nil {
		return nil, huma.Error500InternalServerError("failed to render M3U playlist", err)
	}
	return &FileOutput{
		ContentType: "audio/x-mpegurl",
		Body:        buf.Bytes(),
	}, nil
}

// servePlaylist handles direct HTTP requests for the full playlist.
func (h *OutputHandler) servePlaylist(w http.ResponseWriter, r *http.Request) {
	h.streamM3U(w, r, export.PlaylistFile, export.Options{
		TvgURL: requestBaseURL(r) + "/export/" + export.GuideFile,
	})
}

// serveFavorites handles direct HTTP requests for the favorites playlist.
func (h *OutputHandler) serveFavorites(w http.ResponseWriter, r *http.Request) {
	h.streamM3U(w, r, export.FavoritesPlaylistFile, export.Options{
		FavoritesOnly: true,
		TvgURL:        requestBaseURL(r) + "/export/" + export.GuideFile,
	})
}

func (h *OutputHandler) streamM3U(w http.ResponseWriter, r *http.Request, filename string, opts export.Options) {
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	count, err := h.exporter.WriteM3U(r.Context(), w, opts)
	if err != nil {
		// Headers are already out; all that is left is to log.
		h.logger.ErrorContext(r.Context(), "streaming M3U playlist",
			slog.String("file", filename),
			slog.Any("error", err),
		)
		return
	}
	h.logger.DebugContext(r.Context(), "served M3U playlist",
		slog.String("file", filename),
		slog.Int("channels", count),
	)
}

// serveGuide handles direct HTTP requests for the XMLTV guide.
func (h *OutputHandler) serveGuide(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.GuideFile))

	count, err := h.exporter.WriteXMLTV(r.Context(), w, export.Options{})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "streaming XMLTV guide",
			slog.Any("error", err),
		)
		return
	}
	h.logger.DebugContext(r.Context(), "served XMLTV guide",
		slog.Int("channels", count),
	)
}

// requestBaseURL reconstructs the externally visible base URL of a
// request. Forwarded proto wins over the local connection scheme so
// links survive a TLS-terminating proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
