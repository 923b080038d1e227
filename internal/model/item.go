package model

import "github.com/google/uuid"

// Item is a stocked article. CurrentStock and Version are written only by the
// ledger; everything else is caller-managed metadata.
type Item struct {
	BaseModel
	Code         string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	CurrentStock int64      `gorm:"not null;default:0" json:"current_stock"`
	MinimumStock int64      `gorm:"not null;default:0" json:"minimum_stock" validate:"gte=0"`
	Unit         string     `gorm:"type:varchar(20)" json:"unit"`
	CategoryID   *uuid.UUID `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Category     *Category  `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`

	// Version increments on every balance write; stale writers lose.
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// IsLowStock reports whether the item sits below its minimum.
func (i *Item) IsLowStock() bool {
	return i.CurrentStock < i.MinimumStock
}

// Category groups items. Names are unique.
type Category struct {
	BaseModel
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name" validate:"required"`
}
