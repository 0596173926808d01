// Package gateway implements the request-inspection pipeline every inbound
// API call passes through: origin admission, ban/trust checks, rate
// limiting and signature-based threat detection.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/argus-sec/argus/internal/models"
)

// storeTimeout bounds every durable-store call made from the hot path.
const storeTimeout = 2 * time.Second

// Context carries per-request state through the pipeline stages. It is
// built once per request by the runner; stages never touch package-level
// mutable state.
type Context struct {
	Ctx      context.Context
	Request  *http.Request
	ClientIP string
	Route    string

	// User is the authenticated principal, nil for guests. The origin
	// gate fills it in when a bearer credential resolves.
	User *models.User

	// Trusted is resolved once by the runner before any stage runs. A
	// failed lookup leaves it false (fail closed for the check itself).
	Trusted bool

	// Inputs is the flattened set of request values (query + body),
	// populated lazily by the threat detector.
	Inputs []Input

	Log *logrus.Entry
}

// Input is a single request value with the parameter name it arrived under.
type Input struct {
	Key   string
	Value string
}

// IsAdmin reports whether the request carries an administrative principal.
func (c *Context) IsAdmin() bool {
	return c.User != nil && c.User.IsAdmin()
}

// storeCtx derives a short-timeout context for a durable store call.
func (c *Context) storeCtx() (context.Context, context.CancelFunc) {
	parent := c.Ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, storeTimeout)
}

// Decision is the outcome of a pipeline stage.
type Decision struct {
	Allow      bool
	Status     int
	Code       string
	Message    string
	RetryAfter int               // seconds, only set for throttle decisions
	Headers    map[string]string // attached to the response either way
}

// Admit is the zero-cost allow decision.
func Admit() Decision {
	return Decision{Allow: true}
}

// AdmitWith returns an allow decision carrying response headers.
func AdmitWith(headers map[string]string) Decision {
	return Decision{Allow: true, Headers: headers}
}

// Reject builds a terminal decision with a static, non-revealing message.
func Reject(status int, code, message string) Decision {
	return Decision{Allow: false, Status: status, Code: code, Message: message}
}

// Client-facing error codes. Messages are static; internal detail never
// leaks into responses.
const (
	CodeUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeIPBlocked          = "ip_blocked"
	CodeUnsafeContent      = "unsafe_content"
)
