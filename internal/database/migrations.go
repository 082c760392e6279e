package database

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rbruno/PokeCapture/internal/models"
)

// RunMigrations runs data migrations after schema changes
func RunMigrations(db *gorm.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err :=migrateLegacyCollectionBlob(db, log); err != nil {
		return err
	}
	return nil
}

// migrateLegacyCollectionBlob rewraps a collection stored as a bare
// id -> record mapping into the versioned envelope
func migrateLegacyCollectionBlob(db *gorm.DB, log *zap.Logger) error {
	var entry models.KVEntry
	err := db.Where("key = ?", models.CollectionKVKey).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sf, legacy, err := models.ParseSaveFile([]byte(entry.Value))
	if err != nil {
		// Leave unreadable blobs alone; the store reports them on load
		log.Warn("stored collection is unreadable, not migrating", zap.Error(err))
		return nil
	}
	if !legacy {
		return nil
	}

	wrapped := models.NewSaveFile(sf.Collection, time.Now())
	data, err := json.Marshal(wrapped)
	if err != nil {
		return err
	}

	result := db.Model(&models.KVEntry{}).
		Where("key = ?", models.CollectionKVKey).
		Update("value", string(data))
	if result.Error != nil {
		return result.Error
	}

	log.Info("migrated legacy collection blob", zap.Int("records", len(sf.Collection)))
	return nil
}
