package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/limiter"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
)

// Limiter scopes. The scope picks the identity the counter is keyed on.
const (
	ScopeAPI   = "api"
	ScopeWeb   = "web"
	ScopeRoute = "route"
	ScopeUser  = "user"
)

// RateLimiter decides Allow or Throttle for a request. Trusted addresses
// skip counting entirely; banned addresses are turned away before any
// counter is touched.
type RateLimiter struct {
	cfg    config.GatewayConfig
	scope  string
	store  limiter.CounterStore
	bans   BanRepository
	events EventRecorder
	audits AuditRecorder
}

// NewRateLimiter builds the stage for the given scope.
func NewRateLimiter(cfg config.GatewayConfig, scope string, store limiter.CounterStore, bans BanRepository, events EventRecorder, audits AuditRecorder) *RateLimiter {
	if scope == "" {
		scope = ScopeAPI
	}
	return &RateLimiter{cfg: cfg, scope: scope, store: store, bans: bans, events: events, audits: audits}
}

func (l *RateLimiter) Name() string { return "ratelimit" }

func (l *RateLimiter) Evaluate(c *Context) Decision {
	if c.Trusted {
		return Admit()
	}

	if d, blocked := l.checkBan(c); blocked {
		return d
	}

	key := l.scopeKey(c)
	lim := l.resolveLimit(c)

	count, remaining, err := l.store.Hit(key, lim.Decay)
	if err != nil {
		// Counter store failure fails open for counting only; the ban
		// check above already ran.
		logger.Alert().WithError(err).WithField("key", key).Error("counter store unavailable, admitting uncounted")
		return Admit()
	}

	if count > int64(lim.Attempts) {
		return l.throttle(c, key, lim, count, remaining)
	}

	reset := time.Now().Add(remaining).Unix()
	return AdmitWith(map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(lim.Attempts),
		"X-RateLimit-Remaining": strconv.FormatInt(int64(lim.Attempts)-count, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(reset, 10),
	})
}

// checkBan turns away addresses with a live ban row. A lookup failure
// degrades to "not banned" with an internal alert; silently blocking
// everyone on a store hiccup would be worse than one uncounted window.
func (l *RateLimiter) checkBan(c *Context) (Decision, bool) {
	if l.bans == nil {
		return Decision{}, false
	}
	ctx, cancel := c.storeCtx()
	defer cancel()

	ban, err := l.bans.FindLive(ctx, c.ClientIP)
	if err != nil {
		logger.Alert().WithError(err).WithField("ip", c.ClientIP).Error("ban lookup failed, treating as not banned")
		return Decision{}, false
	}
	if ban == nil {
		return Decision{}, false
	}

	metrics.IncBlocked()
	l.recordEvent(c, &models.SecurityEvent{
		Address:    c.ClientIP,
		EventType:  models.EventBlockedAccess,
		Severity:   models.SeverityWarning,
		RiskScore:  40,
		Route:      c.Route,
		RawRequest: fmt.Sprintf(`{"reason":%q}`, ban.Reason),
	})

	farFuture := time.Now().AddDate(10, 0, 0)
	until := &farFuture
	if ban.ExpiresAt != nil {
		until = ban.ExpiresAt
	}
	l.recordAudit(c, &models.RateLimitAudit{
		Address:      c.ClientIP,
		Scope:        l.scope,
		ScopeKey:     l.scopeKey(c),
		Route:        c.Route,
		BlockedUntil: until,
	})

	status := l.cfg.BlockStatusCode
	if status == 0 {
		status = 429
	}
	return Reject(status, CodeIPBlocked, "Your address has been blocked due to suspicious activity."), true
}

func (l *RateLimiter) throttle(c *Context, key string, lim config.ScopeLimit, count int64, remaining time.Duration) Decision {
	retryAfter := int(math.Ceil(remaining.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	metrics.IncThrottled()
	l.recordAudit(c, &models.RateLimitAudit{
		Address:  c.ClientIP,
		Scope:    l.scope,
		ScopeKey: key,
		Route:    c.Route,
		Attempts: count,
		Limit:    lim.Attempts,
	})
	if l.cfg.LogThrottled {
		l.recordEvent(c, &models.SecurityEvent{
			Address:   c.ClientIP,
			EventType: models.EventRateLimited,
			Severity:  models.SeverityInfo,
			RiskScore: 10,
			Route:     c.Route,
		})
	}

	return Decision{
		Allow:      false,
		Status:     429,
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	}
}

// scopeKey derives the counter bucket deterministically from limiter
// scope and identity, hashed to a fixed length.
func (l *RateLimiter) scopeKey(c *Context) string {
	identity := c.ClientIP
	switch l.scope {
	case ScopeUser:
		if c.User != nil {
			identity = fmt.Sprintf("user:%d", c.User.ID)
		}
	case ScopeRoute:
		identity = c.Route + "|" + c.ClientIP
	}
	sum := sha256.Sum256([]byte(l.scope + "|" + identity))
	return hex.EncodeToString(sum[:])[:40]
}

// resolveLimit picks the numeric limit: a named-route override wins, then
// the user class, then the scope default.
func (l *RateLimiter) resolveLimit(c *Context) config.ScopeLimit {
	if lim, ok := l.cfg.RouteLimits[c.Route]; ok {
		return lim
	}
	if c.User != nil && c.User.IsAdmin() && l.cfg.AdminLimit.Attempts > 0 {
		return l.cfg.AdminLimit
	}
	if c.User == nil && l.scope == ScopeUser && l.cfg.GuestLimit.Attempts > 0 {
		return l.cfg.GuestLimit
	}
	if lim, ok := l.cfg.Limits[l.scope]; ok {
		return lim
	}
	return config.ScopeLimit{Attempts: 60, Decay: time.Minute}
}

func (l *RateLimiter) recordEvent(c *Context, ev *models.SecurityEvent) {
	if l.events == nil {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	if err := l.events.Record(ctx, ev); err != nil {
		logger.Alert().WithError(err).Warn("dropped security event write")
	}
}

func (l *RateLimiter) recordAudit(c *Context, a *models.RateLimitAudit) {
	if l.audits == nil {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	if err := l.audits.RecordAudit(ctx, a); err != nil {
		logger.Alert().WithError(err).Warn("dropped rate limit audit write")
	}
}
