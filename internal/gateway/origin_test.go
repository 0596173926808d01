package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/models"
)

func gateConfig() config.GatewayConfig {
	return config.GatewayConfig{
		AllowedOrigins:  []string{"https://app.example.com"},
		AllowedReferers: []string{"example.com"},
		AllowedAPIHosts: []string{"api.example.com"},
		FrontendSecret:  "s3cret",
		ExcludedPaths:   []string{"/api/v1/health", "/api/v1/auth/oauth/callback"},
		OriginBurst:     1000,
		OriginRate:      1000,
	}
}

func newTestContext(r *http.Request, ip string) *Context {
	return &Context{
		Request:  r,
		ClientIP: ip,
		Route:    r.URL.Path,
		Log:      logrus.NewEntry(logrus.New()),
	}
}

func TestOriginGate_AdmissionRules(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*models.User{
		"good-token": {ID: 7, Role: "user", Enabled: true},
	}}

	tests := []struct {
		name    string
		build   func() *http.Request
		ip      string
		dev     bool
		admit   bool
	}{
		{
			name: "preflight always admitted",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodOptions, "/api/v1/posts", nil)
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "excluded path admitted",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "allow-listed origin admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Origin", "https://app.example.com")
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "local development origin admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Origin", "http://localhost:5173")
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "referer subdomain admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Referer", "https://blog.example.com/article/1")
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "referer from lookalike host rejected",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Referer", "https://notexample.com/")
				return r
			},
			ip:    "203.0.113.9",
			admit: false,
		},
		{
			name: "xhr with allow-listed host admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("X-Requested-With", "XMLHttpRequest")
				r.Host = "api.example.com"
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "frontend secret admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set(FrontendSecretHeader, "s3cret")
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "wrong frontend secret rejected",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set(FrontendSecretHeader, "guess")
				return r
			},
			ip:    "203.0.113.9",
			admit: false,
		},
		{
			name: "bearer credential admitted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Authorization", "Bearer good-token")
				return r
			},
			ip:    "203.0.113.9",
			admit: true,
		},
		{
			name: "dev loopback admitted",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
			},
			ip:    "127.0.0.1",
			dev:   true,
			admit: true,
		},
		{
			name: "loopback outside dev rejected",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
			},
			ip:    "127.0.0.1",
			admit: false,
		},
		{
			name: "evil origin with nothing else rejected",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
				r.Header.Set("Origin", "https://evil.example")
				return r
			},
			ip:    "203.0.113.9",
			admit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := newFakeEvents()
			gate := NewOriginGate(gateConfig(), tt.dev, resolver, events)

			d := gate.Evaluate(newTestContext(tt.build(), tt.ip))

			if tt.admit {
				assert.True(t, d.Allow)
				return
			}
			require.False(t, d.Allow)
			assert.Equal(t, http.StatusForbidden, d.Status)
			assert.Equal(t, CodeUnauthorizedAccess, d.Code)
			assert.Len(t, events.byType(models.EventUnauthorizedOrigin), 1)
		})
	}
}

func TestOriginGate_BearerSetsPrincipal(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*models.User{
		"good-token": {ID: 7, Role: "admin", Enabled: true},
	}}
	gate := NewOriginGate(gateConfig(), false, resolver, newFakeEvents())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	c := newTestContext(r, "203.0.113.9")

	d := gate.Evaluate(c)
	require.True(t, d.Allow)
	require.NotNil(t, c.User)
	assert.True(t, c.IsAdmin())
}

func TestOriginGate_PerIPBudget(t *testing.T) {
	cfg := gateConfig()
	cfg.OriginBurst = 3
	cfg.OriginRate = 0.001
	gate := NewOriginGate(cfg, false, nil, newFakeEvents())

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
		r.Header.Set("Origin", "https://app.example.com")
		d := gate.Evaluate(newTestContext(r, "198.51.100.4"))
		assert.True(t, d.Allow, "request %d should fit the budget", i+1)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	r.Header.Set("Origin", "https://app.example.com")
	d := gate.Evaluate(newTestContext(r, "198.51.100.4"))
	require.False(t, d.Allow)
	assert.Equal(t, http.StatusTooManyRequests, d.Status)

	// A different address still has budget.
	r = httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	r.Header.Set("Origin", "https://app.example.com")
	d = gate.Evaluate(newTestContext(r, "198.51.100.5"))
	assert.True(t, d.Allow)
}

func TestIPBudget_EvictsIdleEntries(t *testing.T) {
	b := newIPBudget(2, 10)

	for _, ip := range []string{"198.51.100.4", "198.51.100.5", "198.51.100.6"} {
		assert.True(t, b.allow(ip))
	}

	// Backdate everything but one address past the idle cutoff, then make
	// the sweep due.
	b.mu.Lock()
	stale := time.Now().Add(-11 * time.Minute)
	b.lastSeen["198.51.100.4"] = stale
	b.lastSeen["198.51.100.5"] = stale
	b.lastSweep = time.Now().Add(-2 * time.Minute)
	b.mu.Unlock()

	assert.True(t, b.allow("198.51.100.6"))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.limiters, 1)
	assert.Contains(t, b.limiters, "198.51.100.6")
	assert.NotContains(t, b.lastSeen, "198.51.100.4")
}
