package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/session"
	"github.com/jmylchreest/tvgrid/internal/urlutil"
	"github.com/jmylchreest/tvgrid/pkg/format"
)

// SessionStatus reports reload state and the active snapshot.
// *session.Session satisfies it.
type SessionStatus interface {
	Status() session.Status
	Current() *guide.Snapshot
}

// StatusHandler reports reload progress and what is currently loaded.
type StatusHandler struct {
	session SessionStatus
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(session SessionStatus) *StatusHandler {
	return &StatusHandler{session: session}
}

// Register registers the status routes with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/api/v1/status",
		Summary:     "Reload status",
		Description: "Returns the reload state and statistics for the active snapshot",
		Tags:        []string{"Status"},
	}, h.Get)
}

// SnapshotStatus describes the active snapshot.
type SnapshotStatus struct {
	Generation uint64      `json:"generation"`
	LoadedAt   time.Time   `json:"loaded_at"`
	Age        string      `json:"age"`
	Stats      guide.Stats `json:"stats"`
}

// GetStatusOutput is the output for the status endpoint.
type GetStatusOutput struct {
	Body struct {
		Success    bool            `json:"success"`
		State      session.State   `json:"state"`
		Generation uint64          `json:"generation"`
		Sources    session.Sources `json:"sources"`
		StartedAt  *time.Time      `json:"started_at,omitempty"`
		FinishedAt *time.Time      `json:"finished_at,omitempty"`
		Error      string          `json:"error,omitempty"`
		// Malformed record counts from the most recent reload attempt,
		// including a failed one.
		PlaylistMalformed int            `json:"playlist_malformed"`
		EpgMalformed      int            `json:"epg_malformed"`
		Snapshot          SnapshotStatus `json:"snapshot"`
	}
}

// Get reports the reload state. Source URLs are redacted; playlist
// URLs routinely embed account credentials.
func (h *StatusHandler) Get(ctx context.Context, _ *struct{}) (*GetStatusOutput, error) {
	status := h.session.Status()
	snap := h.session.Current()

	resp := &GetStatusOutput{}
	resp.Body.Success = true
	resp.Body.State = status.State
	resp.Body.Generation = status.Generation
	resp.Body.Sources = session.Sources{
		Playlist: urlutil.Redact(status.Sources.Playlist),
		EPG:      urlutil.Redact(status.Sources.EPG),
	}
	if !status.StartedAt.IsZero() {
		startedAt := status.StartedAt
		resp.Body.StartedAt = &startedAt
	}
	if !status.FinishedAt.IsZero() {
		finishedAt := status.FinishedAt
		resp.Body.FinishedAt = &finishedAt
	}
	resp.Body.Error = status.Error
	resp.Body.PlaylistMalformed = status.PlaylistMalformed
	resp.Body.EpgMalformed = status.EpgMalformed

	resp.Body.Snapshot = SnapshotStatus{
		Generation: snap.Generation(),
		LoadedAt:   snap.LoadedAt(),
		Stats:      snap.Stats(),
	}
	if !snap.LoadedAt().IsZero() {
		resp.Body.Snapshot.Age = format.RelativeTime(snap.LoadedAt())
	}

	return resp, nil
}
