package models

import (
	"time"

	"pocketledger/internal/uuid"

	"gorm.io/gorm"
)

// Base contains the columns shared by every soft-deletable table.
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUIDv7 unless the caller already chose an ID.
func (b *Base) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}

// All lists every model managed by the schema, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Expense{},
		&Budget{},
		&AuditLog{},
	}
}
