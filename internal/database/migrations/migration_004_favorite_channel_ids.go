package migrations

import (
	"crypto/sha256"
	"encoding/hex"

	"gorm.io/gorm"

	"github.com/jmylchreest/tvgrid/internal/models"
)

// migration004FavoriteChannelIDs backfills favorites that predate the
// channel_id column. The id is derived from the stream URL the same way
// playlist ingestion keys channels that declare no tvg-id: the first 12
// hex characters of the URL's SHA-256. The derivation is inlined here so
// the migration stays frozen even if ingestion changes.
func migration004FavoriteChannelIDs() Migration {
	return Migration{
		Version:     "004",
		Description: "Backfill favorite channel ids from stream URLs",
		Up: func(tx *gorm.DB) error {
			var favorites []models.Favorite
			if err := tx.Where(map[string]interface{}{"channel_id": ""}).
				Find(&favorites).Error; err != nil {
				return err
			}

			for i := range favorites {
				if err := tx.Model(&models.Favorite{}).
					Where(map[string]interface{}{"id": favorites[i].ID}).
					Update("channel_id", urlChannelID(favorites[i].URL)).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			// A backfilled id is exactly the URL derivation, so clearing
			// only those rows restores the pre-migration state.
			var favorites []models.Favorite
			if err := tx.Find(&favorites).Error; err != nil {
				return err
			}

			for i := range favorites {
				if favorites[i].ChannelID != urlChannelID(favorites[i].URL) {
					continue
				}
				if err := tx.Model(&models.Favorite{}).
					Where(map[string]interface{}{"id": favorites[i].ID}).
					Update("channel_id", "").Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func urlChannelID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}
