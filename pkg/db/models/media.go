package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// Media captures metadata for generated objects re-hosted in the object
// store. Temp rows carry an expiry and are bounded per user; saving a row
// moves the object to the permanent namespace and clears the expiry.
type Media struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status     enums.MediaStatus `gorm:"column:status;type:text;not null;default:'temp'"`
	StorageKey string            `gorm:"column:storage_key;not null;unique"`
	URL        string            `gorm:"column:url;not null"`
	MimeType   string            `gorm:"column:mime_type;not null"`
	SizeBytes  int64             `gorm:"column:size_bytes;not null"`
	Prompt     *string           `gorm:"column:prompt"`
	ExpiresAt  *time.Time        `gorm:"column:expires_at;index"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Media) TableName() string { return "media" }
