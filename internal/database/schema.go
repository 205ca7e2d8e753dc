package database

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ModeAnalyze = "analyze"
	ModeCompare = "compare"
)

// Run is one saved analyze or compare request with its full response payload.
type Run struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"index"`
	Mode         string    `gorm:"type:varchar(16);index"`
	BaselineText string
	VariantText  *string
	Response     datatypes.JSON
}
