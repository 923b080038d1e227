package model

import (
	"strings"

	"github.com/google/uuid"
)

type LocationType string

const (
	LocationWarehouse LocationType = "warehouse"
	LocationZone      LocationType = "zone"
	LocationAisle     LocationType = "aisle"
	LocationRack      LocationType = "rack"
	LocationShelf     LocationType = "shelf"
	LocationBin       LocationType = "bin"
)

// locationDepth orders location types from root to leaf.
var locationDepth = map[LocationType]int{
	LocationWarehouse: 0,
	LocationZone:      1,
	LocationAisle:     2,
	LocationRack:      3,
	LocationShelf:     4,
	LocationBin:       5,
}

// ParseLocationType normalizes a free-text type. ok is false for unknown types.
func ParseLocationType(s string) (LocationType, bool) {
	t := LocationType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := locationDepth[t]
	return t, ok
}

// Depth returns the hierarchy depth of t, or -1 when unknown.
func (t LocationType) Depth() int {
	if d, ok := locationDepth[t]; ok {
		return d
	}
	return -1
}

type Location struct {
	BaseModel
	Code     string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name     string       `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Type     LocationType `gorm:"type:varchar(20);not null" json:"type" validate:"required"`
	ParentID *uuid.UUID   `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent   *Location    `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
}
