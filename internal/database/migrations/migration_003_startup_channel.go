package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/tvgrid/internal/models"
)

// migration003StartupChannel renames the last_channel setting to
// startup_channel. Earlier releases stored the restore-on-launch channel
// under last_channel; the key was renamed when startup behavior became
// configurable.
func migration003StartupChannel() Migration {
	return Migration{
		Version:     "003",
		Description: "Rename last_channel setting to startup_channel",
		Up: func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.Setting{}).
				Where(map[string]interface{}{"key": "startup_channel"}).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				// Both keys present: the new one wins, drop the legacy row.
				// Hard delete so the unique index on key is actually freed.
				return tx.Unscoped().
					Where(map[string]interface{}{"key": "last_channel"}).
					Delete(&models.Setting{}).Error
			}

			return tx.Model(&models.Setting{}).
				Where(map[string]interface{}{"key": "last_channel"}).
				Update("key", "startup_channel").Error
		},
		Down: func(tx *gorm.DB) error {
			return tx.Model(&models.Setting{}).
				Where(map[string]interface{}{"key": "startup_channel"}).
				Update("key", "last_channel").Error
		},
	}
}
