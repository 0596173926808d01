package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	JWTSecret    string
	Gateway      GatewayConfig
}

// ScopeLimit is a numeric rate limit expressed as attempts per decay window.
type ScopeLimit struct {
	Attempts int
	Decay    time.Duration
}

// GatewayConfig holds every knob the security pipeline recognizes.
type GatewayConfig struct {
	// Enabled switches the whole pipeline on/off. Individual stages cannot
	// be toggled separately; the trust registry still works when disabled.
	Enabled bool

	// Origin admission.
	AllowedOrigins  []string
	AllowedReferers []string
	AllowedAPIHosts []string
	FrontendSecret  string
	ExcludedPaths   []string

	// Lightweight per-IP budget enforced by the origin gate itself.
	OriginBurst int
	OriginRate  float64

	// Per-scope limits, overridable per route and per user class.
	Limits      map[string]ScopeLimit
	RouteLimits map[string]ScopeLimit
	GuestLimit  ScopeLimit
	AdminLimit  ScopeLimit

	// Static address lists applied at seed time.
	StaticBlockedIPs []string
	StaticTrustedIPs []string

	// Response shaping.
	BlockStatusCode  int
	LogThrottled     bool
	ThreatRulesPath  string
	RichTextB64Allow bool

	// Operator alerting (shoutrrr URLs, comma separated).
	NotifyURLs []string
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("ARGUS_ENV", "development"),
		HTTPPort:     getEnv("ARGUS_HTTP_PORT", "8080"),
		DatabasePath: getEnv("ARGUS_DB_PATH", filepath.Join("data", "argus.db")),
		JWTSecret:    getEnv("ARGUS_JWT_SECRET", ""),
		Gateway: GatewayConfig{
			Enabled:         getEnvBool("ARGUS_GATEWAY_ENABLED", true),
			AllowedOrigins:  getEnvList("ARGUS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			AllowedReferers: getEnvList("ARGUS_ALLOWED_REFERERS", "localhost"),
			AllowedAPIHosts: getEnvList("ARGUS_ALLOWED_API_HOSTS", "localhost:8080"),
			FrontendSecret:  getEnv("ARGUS_FRONTEND_SECRET", ""),
			ExcludedPaths: getEnvList("ARGUS_EXCLUDED_PATHS",
				"/api/v1/health,/api/v1/auth/oauth/callback,/api/v1/auth/verify-email"),
			OriginBurst: getEnvInt("ARGUS_ORIGIN_BURST", 120),
			OriginRate:  getEnvFloat("ARGUS_ORIGIN_RATE", 2),
			Limits: map[string]ScopeLimit{
				"api":   parseScopeLimit(getEnv("ARGUS_LIMIT_API", "60,1")),
				"web":   parseScopeLimit(getEnv("ARGUS_LIMIT_WEB", "120,1")),
				"route": parseScopeLimit(getEnv("ARGUS_LIMIT_ROUTE", "30,1")),
				"user":  parseScopeLimit(getEnv("ARGUS_LIMIT_USER", "300,1")),
			},
			RouteLimits:      parseRouteLimits(getEnv("ARGUS_ROUTE_LIMITS", "")),
			GuestLimit:       parseScopeLimit(getEnv("ARGUS_LIMIT_GUEST", "30,1")),
			AdminLimit:       parseScopeLimit(getEnv("ARGUS_LIMIT_ADMIN", "600,1")),
			StaticBlockedIPs: getEnvList("ARGUS_BLOCKED_IPS", ""),
			StaticTrustedIPs: getEnvList("ARGUS_TRUSTED_IPS", ""),
			BlockStatusCode:  getEnvInt("ARGUS_BLOCK_STATUS", 429),
			LogThrottled:     getEnvBool("ARGUS_LOG_THROTTLED", true),
			ThreatRulesPath:  getEnv("ARGUS_THREAT_RULES", ""),
			RichTextB64Allow: getEnvBool("ARGUS_RICHTEXT_B64_ALLOW", true),
			NotifyURLs:       getEnvList("ARGUS_NOTIFY_URLS", ""),
		},
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// parseScopeLimit parses "attempts,decayMinutes" with a safe fallback.
func parseScopeLimit(raw string) ScopeLimit {
	parts := strings.SplitN(raw, ",", 2)
	limit := ScopeLimit{Attempts: 60, Decay: time.Minute}
	if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && n > 0 {
		limit.Attempts = n
	}
	if len(parts) == 2 {
		if m, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && m > 0 {
			limit.Decay = time.Duration(m) * time.Minute
		}
	}
	return limit
}

// parseRouteLimits parses "route=attempts,decay;route2=attempts,decay".
func parseRouteLimits(raw string) map[string]ScopeLimit {
	out := map[string]ScopeLimit{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		out[strings.TrimSpace(kv[0])] = parseScopeLimit(kv[1])
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
