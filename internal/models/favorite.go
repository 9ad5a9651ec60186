package models

import (
	"strings"

	"gorm.io/gorm"
)

// Favorite is a user-starred channel. Favorites persist across playlist
// reloads, so they carry enough of the channel record to stay
// meaningful even when the channel disappears from the playlist.
type Favorite struct {
	BaseModel

	// ChannelID is the channel identity from the playlist (tvg-id, or
	// the URL-derived id when the playlist has none).
	ChannelID string `gorm:"not null;size:255;index" json:"channel_id"`

	// Name is the channel display name at the time of starring.
	Name string `gorm:"not null;size:512" json:"name"`

	// URL is the stream URL, unique per favorite. When a reloaded
	// playlist hands out new channel ids, membership falls back to URL
	// equality.
	URL string `gorm:"uniqueIndex;not null;size:2048" json:"url" masq:"secret"`

	// GroupTitle is the channel's group at the time of starring.
	GroupTitle string `gorm:"size:255" json:"group_title,omitempty"`

	// LogoURL is the channel logo.
	LogoURL string `gorm:"size:2048" json:"logo_url,omitempty"`

	// EpgID is the channel's EPG identifier if it had one.
	EpgID string `gorm:"size:255" json:"epg_id,omitempty"`
}

// TableName returns the table name for Favorite.
func (Favorite) TableName() string {
	return "favorites"
}

// Sanitize trims whitespace from user-provided fields.
func (f *Favorite) Sanitize() {
	f.ChannelID = strings.TrimSpace(f.ChannelID)
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)
	f.GroupTitle = strings.TrimSpace(f.GroupTitle)
}

// Validate performs basic validation on the favorite.
func (f *Favorite) Validate() error {
	f.Sanitize()

	if f.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if f.Name == "" {
		return ErrNameRequired
	}
	if f.URL == "" {
		return ErrStreamURLRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the favorite and generates ULID.
func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if err := f.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return f.Validate()
}

// BeforeUpdate is a GORM hook that validates the favorite before update.
func (f *Favorite) BeforeUpdate(tx *gorm.DB) error {
	return f.Validate()
}
