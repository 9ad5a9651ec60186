package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/tvgrid/internal/models"
	"gorm.io/gorm"
)

// sourceRepo implements SourceRepository using GORM.
type sourceRepo struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(db *gorm.DB) *sourceRepo {
	return &sourceRepo{db: db}
}

// Create creates a new source.
func (r *sourceRepo) Create(ctx context.Context, source *models.Source) error {
	if err := r.db.WithContext(ctx).Create(source).Error; err != nil {
		return fmt.Errorf("creating source: %w", err)
	}
	return nil
}

// GetByID retrieves a source by ID.
func (r *sourceRepo) GetByID(ctx context.Context, id models.ULID) (*models.Source, error) {
	var source models.Source
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting source by ID: %w", err)
	}
	return &source, nil
}

// GetByName retrieves a source by name.
func (r *sourceRepo) GetByName(ctx context.Context, name string) (*models.Source, error) {
	var source models.Source
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting source by name: %w", err)
	}
	return &source, nil
}

// GetAll retrieves all sources.
func (r *sourceRepo) GetAll(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Order("type ASC, name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting all sources: %w", err)
	}
	return sources, nil
}

// GetEnabled retrieves all enabled sources.
func (r *sourceRepo) GetEnabled(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("type ASC, name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting enabled sources: %w", err)
	}
	return sources, nil
}

// GetEnabledByType retrieves enabled sources of one type.
func (r *sourceRepo) GetEnabledByType(ctx context.Context, sourceType models.SourceType) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Where("enabled = ? AND type = ?", true, sourceType).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting enabled sources by type: %w", err)
	}
	return sources, nil
}

// Update updates an existing source.
func (r *sourceRepo) Update(ctx context.Context, source *models.Source) error {
	if err := r.db.WithContext(ctx).Save(source).Error; err != nil {
		return fmt.Errorf("updating source: %w", err)
	}
	return nil
}

// Delete hard-deletes a source by ID.
// Uses Unscoped to permanently remove the record so the unique name
// constraint doesn't conflict when re-creating a source with the same name.
func (r *sourceRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Source{}).Error; err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	return nil
}

// MarkLoaded records a successful load and clears any previous error.
func (r *sourceRepo) MarkLoaded(ctx context.Context, id models.ULID, at time.Time) error {
	updates := map[string]any{
		"last_loaded_at": at,
		"last_error":     "",
	}

	if err := r.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("marking source loaded: %w", err)
	}
	return nil
}

// MarkFailed records a failed load.
func (r *sourceRepo) MarkFailed(ctx context.Context, id models.ULID, lastError string) error {
	if err := r.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", id).Update("last_error", lastError).Error; err != nil {
		return fmt.Errorf("marking source failed: %w", err)
	}
	return nil
}

// Ensure sourceRepo implements SourceRepository at compile time.
var _ SourceRepository = (*sourceRepo)(nil)
