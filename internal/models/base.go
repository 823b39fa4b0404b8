// Package models defines GORM database models for clipd entities.
package models

import (
	"time"
)

// BaseModel provides common fields for all models: an autoincrement
// integer primary key and created/updated timestamps maintained by gorm.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
