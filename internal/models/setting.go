package models

import "time"

// Setting is a key/value row for runtime-tunable configuration. The gateway
// consults `gateway.enabled` here so the pipeline can be switched without a
// restart; env config provides the boot-time default.
type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex;column:key"`
	Value     string    `json:"value" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
