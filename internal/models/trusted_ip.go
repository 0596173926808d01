package models

import (
	"time"
)

// TrustedIP marks an address that bypasses bans, throttling and threat
// blocking entirely. Detections against trusted addresses are still logged.
// Rows are created and removed by operators only; there is no auto-expiry.
type TrustedIP struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Address   string    `json:"address" gorm:"type:varchar(45);uniqueIndex;not null"`
	Reason    string    `json:"reason" gorm:"type:varchar(500)"`
	GrantedBy *uint     `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
