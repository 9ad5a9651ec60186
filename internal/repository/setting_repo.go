package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/tvgrid/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingRepo implements SettingRepository using GORM.
//
// Conditions on the key column use clause/map forms throughout so the
// dialect quotes it; KEY is a reserved word on MySQL.
type settingRepo struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *settingRepo {
	return &settingRepo{db: db}
}

// Get retrieves a setting by key.
func (r *settingRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting setting %q: %w", key, err)
	}
	return &setting, nil
}

// GetAll retrieves all settings ordered by key.
func (r *settingRepo) GetAll(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	if err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("getting all settings: %w", err)
	}
	return settings, nil
}

// Set creates or updates a setting.
func (r *settingRepo) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// Delete hard-deletes a setting by key.
// Uses Unscoped so the unique key index is freed if the key is set again.
func (r *settingRepo) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Unscoped().
		Where(map[string]interface{}{"key": key}).
		Delete(&models.Setting{}).Error; err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

// EnsureDefaults inserts any missing default keys. Existing values are
// never overwritten, so user changes survive restarts and upgrades that
// introduce new defaults.
func (r *settingRepo) EnsureDefaults(ctx context.Context, defaults map[string]string) error {
	for key, value := range defaults {
		setting := models.Setting{Key: key, Value: value}
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&setting).Error; err != nil {
			return fmt.Errorf("ensuring default setting %q: %w", key, err)
		}
	}
	return nil
}

// Ensure settingRepo implements SettingRepository at compile time.
var _ SettingRepository = (*settingRepo)(nil)
