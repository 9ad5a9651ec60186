// Package migrations provides database migration management for tvgrid.
package migrations

import (
	"github.com/jmylchreest/tvgrid/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// This is a compacted migration set for new installations:
// - 001: Schema creation using GORM AutoMigrate
// - 002: Seed default settings
// - 003: Rename last_channel setting to startup_channel
// - 004: Backfill favorite channel ids from stream URLs
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002DefaultSettings(),
		migration003StartupChannel(),
		migration004FavoriteChannelIDs(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create core tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Source{},
				&models.Favorite{},
				&models.Setting{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"settings",
				"favorites",
				"sources",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002DefaultSettings seeds the default settings rows. Existing
// keys are left untouched so user values survive re-runs.
func migration002DefaultSettings() Migration {
	return Migration{
		Version:     "002",
		Description: "Seed default settings",
		Up: func(tx *gorm.DB) error {
			for key, value := range models.DefaultSettings() {
				var n int64
				if err := tx.Model(&models.Setting{}).
					Where(map[string]interface{}{"key": key}).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					continue
				}
				setting := models.Setting{Key: key, Value: value}
				if err := tx.Create(&setting).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			// Only remove defaults the user never touched.
			for key, value := range models.DefaultSettings() {
				if err := tx.Unscoped().
					Where(map[string]interface{}{"key": key, "value": value}).
					Delete(&models.Setting{}).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
