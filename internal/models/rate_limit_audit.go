package models

import (
	"time"
)

// RateLimitAudit is a durable snapshot written only when a limit is
// exceeded or a banned address is turned away. It feeds analytics and is
// never read on the hot path; the live counters live in the TTL store.
type RateLimitAudit struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UUID         string     `json:"uuid" gorm:"uniqueIndex"`
	Address      string     `json:"address" gorm:"type:varchar(45);index"`
	Scope        string     `json:"scope"` // api, web, route, user
	ScopeKey     string     `json:"scope_key" gorm:"index"`
	Route        string     `json:"route"`
	Attempts     int64      `json:"attempts"`
	Limit        int        `json:"limit" gorm:"column:attempt_limit"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}
