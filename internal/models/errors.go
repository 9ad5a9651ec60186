package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Reload failure taxonomy. Parser-level malformed records are skipped and
// counted, never surfaced as errors; these two are the fatal classes a
// reload attempt can end with.
var (
	// ErrSourceUnavailable indicates the source file or URL could not be
	// opened or fetched. The previously loaded dataset stays active.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrFormatUnrecognized indicates the fetched content is not valid
	// M3U or XMLTV at all. The previously loaded dataset stays active.
	ErrFormatUnrecognized = errors.New("format unrecognized")
)

// Common validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrInvalidURL indicates a malformed URL.
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrInvalidSourceType indicates an invalid source type.
	ErrInvalidSourceType = errors.New("invalid source type: must be 'playlist' or 'epg'")

	// ErrChannelIDRequired indicates a required channel ID field is empty.
	ErrChannelIDRequired = errors.New("channel_id is required")

	// ErrStreamURLRequired indicates a required stream URL field is empty.
	ErrStreamURLRequired = errors.New("stream_url is required")

	// ErrKeyRequired indicates a required setting key is empty.
	ErrKeyRequired = errors.New("key is required")

	// ErrInvalidCronExpr indicates a refresh schedule that cron cannot parse.
	ErrInvalidCronExpr = errors.New("invalid cron expression")
)
