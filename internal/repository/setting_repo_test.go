package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSettingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Setting{})
	require.NoError(t, err)

	return db
}

func TestSettingRepo_Get(t *testing.T) {
	db := setupSettingTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	t.Run("missing key is nil", func(t *testing.T) {
		found, err := repo.Get(ctx, "theme")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("found", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "theme", "dark"))

		found, err := repo.Get(ctx, "theme")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "dark", found.Value)
	})
}

func TestSettingRepo_Set_Upserts(t *testing.T) {
	db := setupSettingTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "volume", "100"))
	require.NoError(t, repo.Set(ctx, "volume", "75"))

	found, err := repo.Get(ctx, "volume")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "75", found.Value)

	// Still a single row.
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSettingRepo_GetAll(t *testing.T) {
	db := setupSettingTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "volume", "100"))
	require.NoError(t, repo.Set(ctx, "last_playlist", "/tmp/list.m3u"))
	require.NoError(t, repo.Set(ctx, "theme", "dark"))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Ordered by key.
	assert.Equal(t, "last_playlist", all[0].Key)
	assert.Equal(t, "theme", all[1].Key)
	assert.Equal(t, "volume", all[2].Key)
}

func TestSettingRepo_Delete(t *testing.T) {
	db := setupSettingTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "startup_channel", "news.hd"))
	require.NoError(t, repo.Delete(ctx, "startup_channel"))

	found, err := repo.Get(ctx, "startup_channel")
	require.NoError(t, err)
	assert.Nil(t, found)

	// The key can be set again after deletion.
	require.NoError(t, repo.Set(ctx, "startup_channel", "sports.1"))
}

func TestSettingRepo_EnsureDefaults(t *testing.T) {
	db := setupSettingTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	defaults := models.DefaultSettings()
	require.NoError(t, repo.EnsureDefaults(ctx, defaults))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defaults))

	// A user-changed value survives the next EnsureDefaults.
	require.NoError(t, repo.Set(ctx, "theme", "light"))
	require.NoError(t, repo.EnsureDefaults(ctx, defaults))

	found, err := repo.Get(ctx, "theme")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "light", found.Value)

	all, err = repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defaults))
}
