package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/tvgrid/internal/models"
	"gorm.io/gorm"
)

// favoriteRepo implements FavoriteRepository using GORM.
type favoriteRepo struct {
	db *gorm.DB
}

// NewFavoriteRepository creates a new FavoriteRepository.
func NewFavoriteRepository(db *gorm.DB) *favoriteRepo {
	return &favoriteRepo{db: db}
}

// Create creates a new favorite.
func (r *favoriteRepo) Create(ctx context.Context, favorite *models.Favorite) error {
	if err := r.db.WithContext(ctx).Create(favorite).Error; err != nil {
		return fmt.Errorf("creating favorite: %w", err)
	}
	return nil
}

// GetByID retrieves a favorite by ID.
func (r *favoriteRepo) GetByID(ctx context.Context, id models.ULID) (*models.Favorite, error) {
	var favorite models.Favorite
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&favorite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting favorite by ID: %w", err)
	}
	return &favorite, nil
}

// GetByChannelID retrieves a favorite by channel ID.
func (r *favoriteRepo) GetByChannelID(ctx context.Context, channelID string) (*models.Favorite, error) {
	var favorite models.Favorite
	if err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&favorite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting favorite by channel ID: %w", err)
	}
	return &favorite, nil
}

// GetByURL retrieves a favorite by stream URL. Channel ids can change
// between playlist reloads; the URL is the stable fallback identity.
func (r *favoriteRepo) GetByURL(ctx context.Context, url string) (*models.Favorite, error) {
	var favorite models.Favorite
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&favorite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting favorite by URL: %w", err)
	}
	return &favorite, nil
}

// GetAll retrieves all favorites ordered by name.
func (r *favoriteRepo) GetAll(ctx context.Context) ([]*models.Favorite, error) {
	var favorites []*models.Favorite
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&favorites).Error; err != nil {
		return nil, fmt.Errorf("getting all favorites: %w", err)
	}
	return favorites, nil
}

// Update updates an existing favorite.
func (r *favoriteRepo) Update(ctx context.Context, favorite *models.Favorite) error {
	if err := r.db.WithContext(ctx).Save(favorite).Error; err != nil {
		return fmt.Errorf("updating favorite: %w", err)
	}
	return nil
}

// Delete hard-deletes a favorite by ID.
// Uses Unscoped to permanently remove the record so the unique url
// constraint doesn't conflict when the channel is favorited again.
func (r *favoriteRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Favorite{}).Error; err != nil {
		return fmt.Errorf("deleting favorite: %w", err)
	}
	return nil
}

// DeleteByChannelID hard-deletes a favorite by channel ID.
func (r *favoriteRepo) DeleteByChannelID(ctx context.Context, channelID string) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("channel_id = ?", channelID).Delete(&models.Favorite{}).Error; err != nil {
		return fmt.Errorf("deleting favorite by channel ID: %w", err)
	}
	return nil
}

// Count returns the total number of favorites.
func (r *favoriteRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Favorite{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting favorites: %w", err)
	}
	return count, nil
}

// Ensure favoriteRepo implements FavoriteRepository at compile time.
var _ FavoriteRepository = (*favoriteRepo)(nil)
