// Package handlers provides HTTP API handlers for tvgrid.
package handlers

import (
	"time"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/models"
)

// SnapshotProvider yields the current guide snapshot. *session.Session
// satisfies it.
type SnapshotProvider interface {
	Current() *guide.Snapshot
}

// ChannelResponse is a playlist channel decorated with guide binding
// and favorite state.
type ChannelResponse struct {
	guide.Channel
	// Match reports how the channel was bound to the programme guide.
	Match guide.MatchKind `json:"match"`
	// Favorite is true when the channel is starred.
	Favorite bool `json:"favorite"`
	// LogoPath is the local cache path for the channel logo, when cached.
	LogoPath string `json:"logo_path,omitempty"`
}

// SourceResponse represents a configured source in API responses.
type SourceResponse struct {
	ID                 models.ULID       `json:"id"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Name               string            `json:"name"`
	Type               models.SourceType `json:"type"`
	URL                string            `json:"url"`
	Enabled            bool              `json:"enabled"`
	RefreshCron        string            `json:"refresh_cron,omitempty"`
	RefreshDescription string            `json:"refresh_description,omitempty"`
	LastLoadedAt       *time.Time        `json:"last_loaded_at,omitempty"`
	LastError          string            `json:"last_error,omitempty"`
}

// SourceFromModel converts a model to a response.
func SourceFromModel(s *models.Source) SourceResponse {
	return SourceResponse{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Name:         s.Name,
		Type:         s.Type,
		URL:          s.URL,
		Enabled:      s.IsEnabled(),
		RefreshCron:  s.RefreshCron,
		LastLoadedAt: s.LastLoadedAt,
		LastError:    s.LastError,
	}
}

// FavoriteResponse represents a favorite in API responses.
type FavoriteResponse struct {
	ID         models.ULID `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	ChannelID  string      `json:"channel_id"`
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	GroupTitle string      `json:"group_title,omitempty"`
	LogoURL    string      `json:"logo_url,omitempty"`
	EpgID      string      `json:"epg_id,omitempty"`
	// Live is true when the channel is present in the current playlist.
	Live bool `json:"live"`
}

// FavoriteFromModel converts a model to a response.
func FavoriteFromModel(f *models.Favorite) FavoriteResponse {
	return FavoriteResponse{
		ID:         f.ID,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
		ChannelID:  f.ChannelID,
		Name:       f.Name,
		URL:        f.URL,
		GroupTitle: f.GroupTitle,
		LogoURL:    f.LogoURL,
		EpgID:      f.EpgID,
	}
}

// pageMeta computes derived pagination fields for a list response.
func pageMeta(total, page, limit int) (totalPages int, hasNext, hasPrev bool) {
	totalPages = total / limit
	if total%limit > 0 {
		totalPages++
	}
	return totalPages, page < totalPages, page > 1
}
