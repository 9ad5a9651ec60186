package models

import (
	"strings"

	"gorm.io/gorm"
)

// Setting is a persisted key/value preference. The server treats values
// as opaque strings; clients interpret them.
type Setting struct {
	BaseModel

	// Key is the setting name, unique.
	Key string `gorm:"uniqueIndex;not null;size:255" json:"key"`

	// Value is the setting value.
	Value string `gorm:"type:text" json:"value"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Validate performs basic validation on the setting.
func (s *Setting) Validate() error {
	s.Key = strings.TrimSpace(s.Key)
	if s.Key == "" {
		return ErrKeyRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the setting and generates ULID.
func (s *Setting) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook that validates the setting before update.
func (s *Setting) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}

// DefaultSettings returns the seeded defaults. Missing keys are
// inserted at startup; existing values are never overwritten.
func DefaultSettings() map[string]string {
	return map[string]string{
		"last_playlist":          "",
		"last_epg":               "",
		"theme":                  "dark",
		"sort_channels_by":       "name",
		"preferred_quality":      "auto",
		"volume":                 "100",
		"auto_reconnect":         "true",
		"max_reconnect_attempts": "5",
		"buffer_size":            "1000",
		"startup_channel":        "",
	}
}
