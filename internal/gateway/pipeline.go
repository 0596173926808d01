package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
)

// Stage is one inspection step. Stages are pure with respect to package
// state: everything they need arrives in the Context or was injected at
// construction time.
type Stage interface {
	Name() string
	Evaluate(c *Context) Decision
}

// Pipeline composes the stages in an explicit, tested order. First
// rejecting stage wins; its decision is rendered and the request aborted.
type Pipeline struct {
	stages  []Stage
	trust   TrustRepository
	enabled func() bool
}

// New assembles the standard stage order: origin gate, rate limiter,
// threat detector. enabled is consulted per request so the pipeline can be
// switched off at runtime without a restart.
func New(origin *OriginGate, limiter *RateLimiter, detector *ThreatDetector, trust TrustRepository, enabled func() bool) *Pipeline {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Pipeline{
		stages:  []Stage{origin, limiter, detector},
		trust:   trust,
		enabled: enabled,
	}
}

// StageNames exposes the composed order for tests and diagnostics.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Evaluate runs the stages against a prepared context and returns the
// first rejection, or an allow decision carrying the accumulated headers.
func (p *Pipeline) Evaluate(c *Context) Decision {
	headers := map[string]string{}
	for _, stage := range p.stages {
		d := stage.Evaluate(c)
		for k, v := range d.Headers {
			headers[k] = v
		}
		if !d.Allow {
			d.Headers = headers
			return d
		}
	}
	return AdmitWith(headers)
}

// Middleware adapts the pipeline to gin. It prepares the request context,
// resolves the trust override once, and renders rejections with static
// messages only.
func (p *Pipeline) Middleware() gin.HandlerFunc {
	return func(gc *gin.Context) {
		if !p.enabled() {
			gc.Next()
			return
		}

		metrics.IncEvaluated()

		c := p.prepare(gc)
		d := p.Evaluate(c)

		for k, v := range d.Headers {
			gc.Header(k, v)
		}
		if c.User != nil {
			gc.Set("user", c.User)
			gc.Set("role", c.User.Role)
		}

		if d.Allow {
			gc.Next()
			return
		}

		render(gc, d)
	}
}

// prepare builds the per-request context. A trust lookup failure degrades
// to "not trusted" with an internal alert rather than admitting or
// blocking everyone.
func (p *Pipeline) prepare(gc *gin.Context) *Context {
	c := &Context{
		Ctx:      gc.Request.Context(),
		Request:  gc.Request,
		ClientIP: ResolveClientIP(gc.Request),
		Route:    routeName(gc),
		Log:      logger.WithFields(map[string]interface{}{"component": "gateway"}),
	}
	if rid, ok := gc.Get("requestID"); ok {
		c.Log = c.Log.WithField("request_id", rid)
	}

	if p.trust != nil {
		ctx, cancel := c.storeCtx()
		defer cancel()
		trusted, err := p.trust.IsTrusted(ctx, c.ClientIP)
		if err != nil {
			logger.Alert().WithField("ip", c.ClientIP).WithError(err).Error("trust lookup failed, treating as untrusted")
		}
		c.Trusted = trusted && err == nil
	}

	return c
}

func routeName(gc *gin.Context) string {
	if name := gc.FullPath(); name != "" {
		return name
	}
	return gc.Request.URL.Path
}

// render writes the client-facing rejection. Body shapes follow the
// public API contract per error code.
func render(gc *gin.Context, d Decision) {
	if d.RetryAfter > 0 {
		gc.Header("Retry-After", strconv.Itoa(d.RetryAfter))
	}

	switch d.Code {
	case CodeUnauthorizedAccess:
		gc.AbortWithStatusJSON(d.Status, gin.H{
			"status":  false,
			"message": d.Message,
			"code":    d.Code,
		})
	case CodeRateLimitExceeded:
		gc.AbortWithStatusJSON(d.Status, gin.H{
			"message":     d.Message,
			"retry_after": d.RetryAfter,
			"error":       d.Code,
		})
	case CodeIPBlocked:
		gc.AbortWithStatusJSON(d.Status, gin.H{
			"message": d.Message,
			"error":   d.Code,
		})
	case CodeUnsafeContent:
		gc.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "unsafe content detected",
		})
	default:
		gc.AbortWithStatusJSON(d.Status, gin.H{"error": d.Message})
	}
}
