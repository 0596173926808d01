package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	evaluatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_requests_total",
		Help: "Total number of requests evaluated by the gateway pipeline",
	})
	originRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_origin_rejected_total",
		Help: "Total number of requests rejected by the origin gate",
	})
	originThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_origin_throttled_total",
		Help: "Total number of requests over the origin gate per-IP budget",
	})
	throttledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_throttled_total",
		Help: "Total number of requests throttled by the rate limiter",
	})
	blockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_blocked_total",
		Help: "Total number of requests turned away for a live ban",
	})
	threatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_gateway_threats_total",
		Help: "Total number of threat signature matches by category",
	}, []string{"category"})
	bannedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_gateway_bans_total",
		Help: "Total number of ban rows created or refreshed",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(evaluatedTotal, originRejectedTotal, originThrottledTotal,
		throttledTotal, blockedTotal, threatsTotal, bannedTotal)
}

// IncEvaluated increments the evaluated requests counter.
func IncEvaluated() { evaluatedTotal.Inc() }

// IncOriginRejected increments the origin gate rejection counter.
func IncOriginRejected() { originRejectedTotal.Inc() }

// IncOriginThrottled increments the origin gate budget counter.
func IncOriginThrottled() { originThrottledTotal.Inc() }

// IncThrottled increments the rate limiter throttle counter.
func IncThrottled() { throttledTotal.Inc() }

// IncBlocked increments the banned-address rejection counter.
func IncBlocked() { blockedTotal.Inc() }

// IncThreatDetected increments the threat counter for a category.
func IncThreatDetected(category string) { threatsTotal.WithLabelValues(category).Inc() }

// IncBanned increments the ban creation counter.
func IncBanned() { bannedTotal.Inc() }
