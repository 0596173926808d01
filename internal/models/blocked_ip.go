package models

import (
	"time"
)

// BlockedIP is a ban row for a single address. ExpiresAt == nil means the
// ban is permanent; IssuedBy == nil means the pipeline created it
// automatically rather than an operator.
//
// An address has at most one live row; expired rows are kept for audit.
type BlockedIP struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UUID      string     `json:"uuid" gorm:"uniqueIndex"`
	Address   string     `json:"address" gorm:"type:varchar(45);uniqueIndex;not null"`
	Reason    string     `json:"reason" gorm:"type:varchar(500)"`
	IssuedBy  *uint      `json:"issued_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsLive reports whether the ban currently applies.
func (b *BlockedIP) IsLive() bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(time.Now())
}

// IsPermanent reports whether the ban never expires on its own.
func (b *BlockedIP) IsPermanent() bool {
	return b.ExpiresAt == nil
}
