// Package repository defines data access interfaces for tvgrid entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/tvgrid/internal/models"
)

// SourceRepository defines operations for playlist and EPG source persistence.
type SourceRepository interface {
	// Create creates a new source.
	Create(ctx context.Context, source *models.Source) error
	// GetByID retrieves a source by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Source, error)
	// GetByName retrieves a source by name.
	GetByName(ctx context.Context, name string) (*models.Source, error)
	// GetAll retrieves all sources.
	GetAll(ctx context.Context) ([]*models.Source, error)
	// GetEnabled retrieves all enabled sources.
	GetEnabled(ctx context.Context) ([]*models.Source, error)
	// GetEnabledByType retrieves enabled sources of one type.
	GetEnabledByType(ctx context.Context, sourceType models.SourceType) ([]*models.Source, error)
	// Update updates an existing source.
	Update(ctx context.Context, source *models.Source) error
	// Delete deletes a source by ID.
	Delete(ctx context.Context, id models.ULID) error
	// MarkLoaded records a successful load and clears any previous error.
	MarkLoaded(ctx context.Context, id models.ULID, at time.Time) error
	// MarkFailed records a failed load.
	MarkFailed(ctx context.Context, id models.ULID, lastError string) error
}

// FavoriteRepository defines operations for favorite persistence.
type FavoriteRepository interface {
	// Create creates a new favorite.
	Create(ctx context.Context, favorite *models.Favorite) error
	// GetByID retrieves a favorite by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Favorite, error)
	// GetByChannelID retrieves a favorite by channel ID.
	GetByChannelID(ctx context.Context, channelID string) (*models.Favorite, error)
	// GetByURL retrieves a favorite by stream URL.
	GetByURL(ctx context.Context, url string) (*models.Favorite, error)
	// GetAll retrieves all favorites ordered by name.
	GetAll(ctx context.Context) ([]*models.Favorite, error)
	// Update updates an existing favorite.
	Update(ctx context.Context, favorite *models.Favorite) error
	// Delete deletes a favorite by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteByChannelID deletes a favorite by channel ID.
	DeleteByChannelID(ctx context.Context, channelID string) error
	// Count returns the total number of favorites.
	Count(ctx context.Context) (int64, error)
}

// SettingRepository defines operations for settings persistence.
// Settings are a flat key/value store; missing keys read as their default.
type SettingRepository interface {
	// Get retrieves a setting by key.
	Get(ctx context.Context, key string) (*models.Setting, error)
	// GetAll retrieves all settings ordered by key.
	GetAll(ctx context.Context) ([]*models.Setting, error)
	// Set creates or updates a setting.
	Set(ctx context.Context, key, value string) error
	// Delete deletes a setting by key.
	Delete(ctx context.Context, key string) error
	// EnsureDefaults inserts any missing default keys. Existing values
	// are never overwritten.
	EnsureDefaults(ctx context.Context, defaults map[string]string) error
}
