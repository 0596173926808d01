package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/models"
)

var ErrEventNotFound = errors.New("security event not found")

// EventService is the durable, queryable security event log. Writes from
// the pipeline are best effort: callers discard the error after logging,
// never letting a failed write change an admission decision.
type EventService struct {
	db *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

// Record appends an event. UUID and CreatedAt are filled in when absent;
// severity and risk score are never recomputed after this point.
func (s *EventService) Record(ctx context.Context, event *models.SecurityEvent) error {
	if event == nil {
		return nil
	}
	if event.UUID == "" {
		event.UUID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// LogEvent is the fire-and-forget wrapper: failures are logged internally
// and swallowed.
func (s *EventService) LogEvent(ctx context.Context, event *models.SecurityEvent) {
	if err := s.Record(ctx, event); err != nil {
		logger.Alert().WithError(err).Warn("dropped security event write")
	}
}

// CountAttacksSince counts attack-type events (SQLi/XSS attempts) from an
// address after the given instant. Ban escalation keys off this.
func (s *EventService) CountAttacksSince(ctx context.Context, address string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Where("address = ?", address).
		Where("event_type IN ?", []string{models.EventSQLInjectionAttempt, models.EventXSSAttempt}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

// EventFilter narrows List queries. Zero values mean "no constraint".
type EventFilter struct {
	EventType string
	Severity  string
	Address   string
	Resolved  *bool
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

// List returns a page of events matching the filter, newest first, along
// with the total match count.
func (s *EventService) List(ctx context.Context, f EventFilter) ([]models.SecurityEvent, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.SecurityEvent{})
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Address != "" {
		q = q.Where("address = ?", f.Address)
	}
	if f.Resolved != nil {
		q = q.Where("is_resolved = ?", *f.Resolved)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	var events []models.SecurityEvent
	err := q.Order("created_at desc").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error
	return events, total, err
}

// Timeline returns every event for an address, newest first.
func (s *EventService) Timeline(ctx context.Context, address string, limit int) ([]models.SecurityEvent, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var events []models.SecurityEvent
	err := s.db.WithContext(ctx).
		Where("address = ?", address).
		Order("created_at desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Resolve marks an event handled. Resolution fields are the only mutable
// columns on an event row.
func (s *EventService) Resolve(ctx context.Context, id uint, resolvedBy uint, notes string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]interface{}{
			"is_resolved":      true,
			"resolved_at":      now,
			"resolved_by":      resolvedBy,
			"resolution_notes": notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Delete removes a single event (administrative purge of one row).
func (s *EventService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.SecurityEvent{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// PurgeResolved removes resolved events older than the retention window.
func (s *EventService) PurgeResolved(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("is_resolved = ? AND created_at < ?", true, cutoff).
		Delete(&models.SecurityEvent{})
	return res.RowsAffected, res.Error
}

// RouteCount pairs a route with how many events it attracted.
type RouteCount struct {
	Route string `json:"route"`
	Count int64  `json:"count"`
}

// AnalyticsReport aggregates a date range of events for the dashboard.
type AnalyticsReport struct {
	Score        int              `json:"score"`
	Total        int64            `json:"total"`
	Resolved     int64            `json:"resolved"`
	Distribution map[string]int64 `json:"distribution"`
	TopRoutes    []RouteCount     `json:"top_routes"`
}

// Analytics computes the composite security score and event aggregates
// for the range. An empty range scores a perfect 100.
func (s *EventService) Analytics(ctx context.Context, from, to time.Time) (*AnalyticsReport, error) {
	type row struct {
		EventType  string
		Route      string
		RiskScore  int
		IsResolved bool
		CreatedAt  time.Time
		ResolvedAt *time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Select("event_type", "route", "risk_score", "is_resolved", "created_at", "resolved_at").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	report := &AnalyticsReport{
		Distribution: map[string]int64{},
	}
	if len(rows) == 0 {
		report.Score = 100
		return report, nil
	}

	routeCounts := map[string]int64{}
	var riskSum float64
	var resolutionMinutes float64
	for _, r := range rows {
		report.Total++
		report.Distribution[r.EventType]++
		if r.Route != "" {
			routeCounts[r.Route]++
		}
		riskSum += float64(r.RiskScore)
		if r.IsResolved {
			report.Resolved++
			if r.ResolvedAt != nil {
				resolutionMinutes += r.ResolvedAt.Sub(r.CreatedAt).Minutes()
			}
		}
	}

	report.Score = securityScore(riskSum, resolutionMinutes, report.Resolved, report.Total)
	report.TopRoutes = topRoutes(routeCounts, 10)
	return report, nil
}

// securityScore implements the composite [0,100] score:
// 0.3*risk + 0.4*resolution + 0.3*response.
func securityScore(riskSum, resolutionMinutes float64, resolved, total int64) int {
	avgRisk := riskSum / float64(total)
	riskComponent := math.Max(0, 100-avgRisk*10)

	resolutionComponent := float64(resolved) / float64(total) * 100

	var avgResolutionMinutes float64
	if resolved > 0 {
		avgResolutionMinutes = resolutionMinutes / float64(resolved)
	}
	responseComponent := math.Max(0, 100-(avgResolutionMinutes/120*100))

	score := math.Round(0.3*riskComponent + 0.4*resolutionComponent + 0.3*responseComponent)
	return int(score)
}

func topRoutes(counts map[string]int64, limit int) []RouteCount {
	out := make([]RouteCount, 0, len(counts))
	for route, count := range counts {
		out = append(out, RouteCount{Route: route, Count: count})
	}
	// insertion sort by count desc; the map is small
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IPStats aggregates per-address risk for the detail view.
type IPStats struct {
	Address    string     `json:"address"`
	Total      int64      `json:"total"`
	Attacks    int64      `json:"attacks"`
	AvgRisk    float64    `json:"avg_risk"`
	MaxRisk    int        `json:"max_risk"`
	Unresolved int64      `json:"unresolved"`
	FirstSeen  *time.Time `json:"first_seen,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

// StatsForAddress computes aggregate risk figures for one address.
func (s *EventService) StatsForAddress(ctx context.Context, address string) (*IPStats, error) {
	var events []models.SecurityEvent
	err := s.db.WithContext(ctx).
		Select("event_type", "risk_score", "is_resolved", "created_at").
		Where("address = ?", address).
		Order("created_at asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	stats := &IPStats{Address: address}
	var riskSum float64
	for i := range events {
		e := &events[i]
		stats.Total++
		if e.IsAttack() {
			stats.Attacks++
		}
		if !e.IsResolved {
			stats.Unresolved++
		}
		riskSum += float64(e.RiskScore)
		if e.RiskScore > stats.MaxRisk {
			stats.MaxRisk = e.RiskScore
		}
		if stats.FirstSeen == nil {
			t := e.CreatedAt
			stats.FirstSeen = &t
		}
		t := e.CreatedAt
		stats.LastSeen = &t
	}
	if stats.Total > 0 {
		stats.AvgRisk = riskSum / float64(stats.Total)
	}
	return stats, nil
}

// RecordAudit persists a rate-limit audit snapshot (cold path only).
func (s *EventService) RecordAudit(ctx context.Context, audit *models.RateLimitAudit) error {
	if audit == nil {
		return nil
	}
	if audit.UUID == "" {
		audit.UUID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(audit).Error
}
