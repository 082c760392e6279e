package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rbruno/PokeCapture/internal/models"
)

var DB *gorm.DB

// Initialize opens the sqlite database at dbPath, migrates the schema and
// runs data migrations
func Initialize(dbPath string, log *zap.Logger) error {
	db, err := Open(dbPath, log)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open is Initialize without touching the package-level handle
func Open(dbPath string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("database connected", zap.String("path", dbPath))

	if err := db.AutoMigrate(&models.KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := RunMigrations(db, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("database migration completed")
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
