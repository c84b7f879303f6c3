package model

import (
	"time"

	"gorm.io/datatypes"
)

// Pipeline is the persisted pipeline record. Nested structures are JSON
// columns; the record is always read and written whole.
type Pipeline struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)"`
	UserID      string         `gorm:"type:varchar(128);index"`
	Status      string         `gorm:"type:varchar(16);not null;index:idx_status_updated"`
	Request     datatypes.JSON `gorm:"not null"`
	Stages      datatypes.JSON `gorm:"not null"`
	Results     datatypes.JSON
	Error       datatypes.JSON
	CreatedAt   time.Time      `gorm:"autoCreateTime:false;index"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime:false;index:idx_status_updated"`
	CompletedAt *time.Time
}

func (Pipeline) TableName() string {
	return "asset_pipelines"
}
