package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// SourceType distinguishes playlist sources from EPG sources.
type SourceType string

const (
	// SourceTypePlaylist is an M3U/M3U8 channel list source.
	SourceTypePlaylist SourceType = "playlist"
	// SourceTypeEPG is an XMLTV programme guide source.
	SourceTypeEPG SourceType = "epg"
)

// Source is a configured playlist or EPG location. The URL may be a
// remote http(s) URL, a file:// URL, or a plain local path.
type Source struct {
	BaseModel

	// Name is a user-friendly name, unique across all sources.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// Type indicates whether this is a playlist or EPG source.
	Type SourceType `gorm:"not null;size:20;index" json:"type"`

	// URL is where the source is fetched from.
	URL string `gorm:"not null;size:2048" json:"url" masq:"secret"`

	// Enabled indicates whether this source participates in reloads.
	// Pointer distinguishes "not set" (nil, defaults true) from
	// "explicitly false".
	Enabled *bool `gorm:"default:true" json:"enabled"`

	// RefreshCron is an optional cron schedule for automatic reloads,
	// standard five-field format: "0 */6 * * *" for every 6 hours.
	RefreshCron string `gorm:"size:100" json:"refresh_cron,omitempty"`

	// LastLoadedAt is the timestamp of the last successful load.
	LastLoadedAt *time.Time `json:"last_loaded_at,omitempty"`

	// LastError contains the error message from the last failed load.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
}

// TableName returns the table name for Source.
func (Source) TableName() string {
	return "sources"
}

// IsPlaylist returns true if this is a playlist source.
func (s *Source) IsPlaylist() bool {
	return s.Type == SourceTypePlaylist
}

// IsEPG returns true if this is an EPG source.
func (s *Source) IsEPG() bool {
	return s.Type == SourceTypeEPG
}

// IsEnabled returns the effective enabled state.
func (s *Source) IsEnabled() bool {
	return BoolVal(s.Enabled)
}

// MarkLoaded records a successful load.
func (s *Source) MarkLoaded() {
	now := time.Now()
	s.LastLoadedAt = &now
	s.LastError = ""
}

// MarkFailed records a failed load.
func (s *Source) MarkFailed(err error) {
	if err != nil {
		s.LastError = err.Error()
	}
}

// Sanitize trims whitespace from user-provided fields.
func (s *Source) Sanitize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.RefreshCron = strings.TrimSpace(s.RefreshCron)
}

// Validate performs basic validation on the source.
func (s *Source) Validate() error {
	s.Sanitize()

	if s.Name == "" {
		return ErrNameRequired
	}
	if s.URL == "" {
		return ErrURLRequired
	}
	if _, err := url.Parse(s.URL); err != nil {
		return ErrInvalidURL
	}
	if s.Type != SourceTypePlaylist && s.Type != SourceTypeEPG {
		return ErrInvalidSourceType
	}
	if s.RefreshCron != "" {
		if _, err := cron.ParseStandard(s.RefreshCron); err != nil {
			return ErrInvalidCronExpr
		}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the source and generates ULID.
func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook that validates the source before update.
func (s *Source) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}
