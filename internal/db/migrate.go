package db

import (
	"github.com/lalitcap23/defess-v3/internal/models"
)

// AutoMigrate creates the tables this service owns. The posts, users and likes
// tables belong to the web app and are only created when includeExternal is
// set (local sqlite runs and tests).
func AutoMigrate(db *DB, includeExternal bool) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	owned := []any{
		&models.NFTWinner{},
		&models.PeriodRun{},
	}
	if err := db.Gorm.AutoMigrate(owned...); err != nil {
		return err
	}
	if !includeExternal {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Like{},
	)
}
