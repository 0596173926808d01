package gateway

import (
	"context"
	"time"

	"github.com/argus-sec/argus/internal/models"
)

// The pipeline talks to storage through narrow interfaces so the engine
// behind them (SQL, key-value, in-memory for tests) is swappable.

// TrustRepository answers the trust-override question.
type TrustRepository interface {
	IsTrusted(ctx context.Context, address string) (bool, error)
}

// BanRepository manages ban rows. Upsert must be idempotent on address so
// racing ban creations collapse into one live row.
type BanRepository interface {
	FindLive(ctx context.Context, address string) (*models.BlockedIP, error)
	Upsert(ctx context.Context, address, reason string, issuedBy *uint, expiresAt *time.Time) (*models.BlockedIP, error)
	Expire(ctx context.Context, address string) error
}

// EventRecorder appends security events and answers the escalation query.
// Record failures are the caller's to discard; they must never change an
// already-made admission decision.
type EventRecorder interface {
	Record(ctx context.Context, event *models.SecurityEvent) error
	CountAttacksSince(ctx context.Context, address string, since time.Time) (int64, error)
}

// AuditRecorder persists rate-limit audit snapshots (cold path only).
type AuditRecorder interface {
	RecordAudit(ctx context.Context, audit *models.RateLimitAudit) error
}

// PrincipalResolver turns a bearer credential into an authenticated user.
type PrincipalResolver interface {
	ResolveToken(token string) (*models.User, error)
}

// Notifier delivers best-effort operator alerts. Implementations must not
// block the caller.
type Notifier interface {
	NotifyAsync(title, message string)
}
