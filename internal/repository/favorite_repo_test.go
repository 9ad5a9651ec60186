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

func setupFavoriteTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Favorite{})
	require.NoError(t, err)

	return db
}

func TestFavoriteRepo_Create(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID:  "news.hd",
		Name:       "News HD",
		URL:        "http://example.com/stream/news",
		GroupTitle: "News",
	}

	err := repo.Create(ctx, favorite)
	require.NoError(t, err)
	assert.False(t, favorite.ID.IsZero())
}

func TestFavoriteRepo_Create_DuplicateURL(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	first := &models.Favorite{
		ChannelID: "news.hd",
		Name:      "News HD",
		URL:       "http://example.com/stream/news",
	}
	require.NoError(t, repo.Create(ctx, first))

	// Same stream under a different channel id is still the same favorite.
	duplicate := &models.Favorite{
		ChannelID: "news.hd.2",
		Name:      "News HD+1",
		URL:       "http://example.com/stream/news",
	}
	assert.Error(t, repo.Create(ctx, duplicate))
}

func TestFavoriteRepo_GetByID(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "sports.1",
		Name:      "Sports One",
		URL:       "http://example.com/stream/sports",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	t.Run("found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, favorite.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Sports One", found.Name)
	})

	t.Run("not found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, models.NewULID())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestFavoriteRepo_GetByChannelID(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "movies.4k",
		Name:      "Movies 4K",
		URL:       "http://example.com/stream/movies",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	t.Run("found", func(t *testing.T) {
		found, err := repo.GetByChannelID(ctx, "movies.4k")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, favorite.ID, found.ID)
	})

	t.Run("not found", func(t *testing.T) {
		found, err := repo.GetByChannelID(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestFavoriteRepo_GetByURL(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "docs.1",
		Name:      "Documentaries",
		URL:       "http://example.com/stream/docs",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	found, err := repo.GetByURL(ctx, "http://example.com/stream/docs")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "docs.1", found.ChannelID)

	missing, err := repo.GetByURL(ctx, "http://example.com/stream/other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFavoriteRepo_GetAll(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	names := []string{"Charlie", "Alpha", "Bravo"}
	for i, name := range names {
		favorite := &models.Favorite{
			ChannelID: name,
			Name:      name,
			URL:       "http://example.com/stream/" + name,
		}
		require.NoError(t, repo.Create(ctx, favorite), "favorite %d", i)
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "Alpha", all[0].Name)
	assert.Equal(t, "Bravo", all[1].Name)
	assert.Equal(t, "Charlie", all[2].Name)
}

func TestFavoriteRepo_Update(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "kids.1",
		Name:      "Kids",
		URL:       "http://example.com/stream/kids",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	// A reload renamed the channel; the favorite follows it.
	favorite.Name = "Kids & Family"
	favorite.EpgID = "kids.guide"
	require.NoError(t, repo.Update(ctx, favorite))

	found, err := repo.GetByID(ctx, favorite.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Kids & Family", found.Name)
	assert.Equal(t, "kids.guide", found.EpgID)
}

func TestFavoriteRepo_Delete(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "temp.1",
		Name:      "Temporary",
		URL:       "http://example.com/stream/temp",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	require.NoError(t, repo.Delete(ctx, favorite.ID))

	found, err := repo.GetByID(ctx, favorite.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	// The unique url is freed, so the channel can be favorited again.
	again := &models.Favorite{
		ChannelID: "temp.1",
		Name:      "Temporary",
		URL:       "http://example.com/stream/temp",
	}
	require.NoError(t, repo.Create(ctx, again))
}

func TestFavoriteRepo_DeleteByChannelID(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	favorite := &models.Favorite{
		ChannelID: "gone.1",
		Name:      "Going",
		URL:       "http://example.com/stream/gone",
	}
	require.NoError(t, repo.Create(ctx, favorite))

	require.NoError(t, repo.DeleteByChannelID(ctx, "gone.1"))

	found, err := repo.GetByChannelID(ctx, "gone.1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFavoriteRepo_Count(t *testing.T) {
	db := setupFavoriteTestDB(t)
	repo := NewFavoriteRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for _, name := range []string{"One", "Two"} {
		favorite := &models.Favorite{
			ChannelID: name,
			Name:      name,
			URL:       "http://example.com/stream/" + name,
		}
		require.NoError(t, repo.Create(ctx, favorite))
	}

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
