package models

import (
	"time"
)

// Event types recorded by the pipeline stages.
const (
	EventSQLInjectionAttempt = "sql_injection_attempt"
	EventXSSAttempt          = "xss_attempt"
	EventBlockedAccess       = "blocked_access"
	EventTrustedAccess       = "trusted_access"
	EventLoginFailed         = "login_failed"
	EventUnauthorizedOrigin  = "unauthorized_origin"
	EventRateLimited         = "rate_limited"
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityDanger   = "danger"
	SeverityCritical = "critical"
)

// SecurityEvent is an append-only forensic record written by any pipeline
// stage. RiskScore and Severity are set once at creation and never
// recomputed; the resolution fields are the only mutable columns.
type SecurityEvent struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	UUID            string     `json:"uuid" gorm:"uniqueIndex"`
	Address         string     `json:"address" gorm:"type:varchar(45);index"`
	EventType       string     `json:"event_type" gorm:"index"`
	Severity        string     `json:"severity" gorm:"index"`
	RiskScore       int        `json:"risk_score"` // 0-100
	Route           string     `json:"route" gorm:"index"`
	RawRequest      string     `json:"raw_request" gorm:"type:text"` // sanitized snapshot for forensics
	IsResolved      bool       `json:"is_resolved" gorm:"index;default:false"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *uint      `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at" gorm:"index"`
}

// IsAttack reports whether the event records an injection attempt rather
// than an access decision. Only attack events count toward ban escalation.
func (e *SecurityEvent) IsAttack() bool {
	return e.EventType == EventSQLInjectionAttempt || e.EventType == EventXSSAttempt
}
