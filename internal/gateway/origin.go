package gateway

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
)

// FrontendSecretHeader carries the shared secret the first-party frontend
// attaches to every request.
const FrontendSecretHeader = "X-Frontend-Key"

// Origins always admitted so local development works without config.
var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// OriginGate is the admission filter in front of the heavier stages. It
// validates the caller is the legitimate frontend and enforces its own
// small per-IP budget to blunt scrapers early.
type OriginGate struct {
	cfg      config.GatewayConfig
	dev      bool
	resolver PrincipalResolver
	events   EventRecorder
	budget   *ipBudget
}

// NewOriginGate builds the gate. resolver may be nil when no bearer
// admission is wanted (tests).
func NewOriginGate(cfg config.GatewayConfig, dev bool, resolver PrincipalResolver, events EventRecorder) *OriginGate {
	return &OriginGate{
		cfg:      cfg,
		dev:      dev,
		resolver: resolver,
		events:   events,
		budget:   newIPBudget(rate.Limit(cfg.OriginRate), cfg.OriginBurst),
	}
}

func (g *OriginGate) Name() string { return "origin" }

// Evaluate applies the admission rules in order; first match wins.
func (g *OriginGate) Evaluate(c *Context) Decision {
	// Preflight requests carry no body and trigger no side effects.
	if c.Request.Method == http.MethodOptions {
		return Admit()
	}

	if g.isExcludedPath(c.Request.URL.Path) {
		return Admit()
	}

	if !g.budget.allow(c.ClientIP) {
		metrics.IncOriginThrottled()
		return Decision{
			Allow:      false,
			Status:     http.StatusTooManyRequests,
			Code:       CodeRateLimitExceeded,
			Message:    "Too many requests. Please slow down.",
			RetryAfter: 1,
		}
	}

	if origin := c.Request.Header.Get("Origin"); origin != "" && g.originAllowed(origin) {
		return Admit()
	}

	if referer := c.Request.Header.Get("Referer"); referer != "" && g.refererAllowed(referer) {
		return Admit()
	}

	if c.Request.Header.Get("X-Requested-With") == "XMLHttpRequest" && g.hostAllowed(c.Request.Host) {
		return Admit()
	}

	if g.secretMatches(c.Request.Header.Get(FrontendSecretHeader)) {
		return Admit()
	}

	if user := g.resolveBearer(c); user != nil {
		c.User = user
		return Admit()
	}

	if g.dev && isLoopback(c.ClientIP) {
		return Admit()
	}

	g.logRejection(c)
	metrics.IncOriginRejected()
	return Reject(http.StatusForbidden, CodeUnauthorizedAccess, "Access denied.")
}

func (g *OriginGate) isExcludedPath(path string) bool {
	for _, p := range g.cfg.ExcludedPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (g *OriginGate) originAllowed(origin string) bool {
	for _, allowed := range g.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	for _, allowed := range devOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// refererAllowed admits referers whose host equals or is a subdomain of an
// allow-listed host.
func (g *OriginGate) refererAllowed(referer string) bool {
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range g.cfg.AllowedReferers {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (g *OriginGate) hostAllowed(host string) bool {
	for _, allowed := range g.cfg.AllowedAPIHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

func (g *OriginGate) secretMatches(provided string) bool {
	if g.cfg.FrontendSecret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(g.cfg.FrontendSecret)) == 1
}

func (g *OriginGate) resolveBearer(c *Context) *models.User {
	if g.resolver == nil {
		return nil
	}
	auth := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil
	}
	user, err := g.resolver.ResolveToken(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return nil
	}
	return user
}

// logRejection records the denied access. The event write is best effort;
// the rejection stands regardless.
func (g *OriginGate) logRejection(c *Context) {
	c.Log.WithFields(map[string]interface{}{
		"ip":     c.ClientIP,
		"route":  c.Route,
		"origin": c.Request.Header.Get("Origin"),
	}).Warn("origin gate rejected request")

	if g.events == nil {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	_ = g.events.Record(ctx, &models.SecurityEvent{
		Address:   c.ClientIP,
		EventType: models.EventUnauthorizedOrigin,
		Severity:  models.SeverityWarning,
		RiskScore: 20,
		Route:     c.Route,
	})
}

// ipBudget is a fixed per-IP request budget independent of the main rate
// limiter, after the per-IP limiter map idiom. Idle entries are evicted
// lazily from allow so the gate owns no background goroutine.
type ipBudget struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSeen  map[string]time.Time
	rate      rate.Limit
	burst     int
	lastSweep time.Time
}

func newIPBudget(r rate.Limit, burst int) *ipBudget {
	if burst <= 0 {
		burst = 120
	}
	if r <= 0 {
		r = 2
	}
	return &ipBudget{
		limiters:  make(map[string]*rate.Limiter),
		lastSeen:  make(map[string]time.Time),
		rate:      r,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (b *ipBudget) allow(ip string) bool {
	now := time.Now()
	b.mu.Lock()
	lim, ok := b.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(b.rate, b.burst)
		b.limiters[ip] = lim
	}
	b.lastSeen[ip] = now
	if now.Sub(b.lastSweep) >= time.Minute {
		b.sweepLocked(now)
	}
	b.mu.Unlock()
	return lim.Allow()
}

// sweepLocked drops limiters idle for ten minutes so the map cannot grow
// unbounded under address churn. Caller holds b.mu.
func (b *ipBudget) sweepLocked(now time.Time) {
	cutoff := now.Add(-10 * time.Minute)
	for ip, seen := range b.lastSeen {
		if seen.Before(cutoff) {
			delete(b.limiters, ip)
			delete(b.lastSeen, ip)
		}
	}
	b.lastSweep = now
}
