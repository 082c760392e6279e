package models

import (
	"time"
)

// KVEntry is a key/value blob row in the local redundant store
type KVEntry struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionKVKey is the key the collection blob is stored under
const CollectionKVKey = "pokemonCollection"
