package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

func newEventRouter(t *testing.T) (*gin.Engine, *services.EventService, *gorm.DB) {
	t.Helper()
	db := migratedTestDB(t)
	events := services.NewEventService(db)
	h := NewEventHandler(events)

	router := newTestRouter()
	admin := router.Group("/", asOperator(7))
	admin.GET("/events", h.List)
	admin.PUT("/events/:id/resolve", h.Resolve)
	admin.DELETE("/events/:id", h.Delete)
	admin.DELETE("/events", h.Purge)
	return router, events, db
}

func TestEventHandler_ListWithFilters(t *testing.T) {
	router, events, _ := newEventRouter(t)
	ctx := context.Background()

	require.NoError(t, events.Record(ctx, &models.SecurityEvent{Address: "203.0.113.5", EventType: models.EventSQLInjectionAttempt, Severity: models.SeverityDanger, RiskScore: 80}))
	require.NoError(t, events.Record(ctx, &models.SecurityEvent{Address: "203.0.113.6", EventType: models.EventRateLimited, Severity: models.SeverityInfo, RiskScore: 10}))

	w := doJSON(router, http.MethodGet, "/events?type="+models.EventSQLInjectionAttempt, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["events"], 1)

	w = doJSON(router, http.MethodGet, "/events?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/events?from=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_ResolveAttributesOperator(t *testing.T) {
	router, events, db := newEventRouter(t)

	ev := &models.SecurityEvent{Address: "203.0.113.5", EventType: models.EventXSSAttempt, Severity: models.SeverityDanger, RiskScore: 80}
	require.NoError(t, events.Record(context.Background(), ev))

	w := doJSON(router, http.MethodPut, "/events/1/resolve", ResolveRequest{Notes: "false positive"})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.SecurityEvent
	require.NoError(t, db.First(&stored, ev.ID).Error)
	assert.True(t, stored.IsResolved)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, uint(7), *stored.ResolvedBy)
	assert.Equal(t, "false positive", stored.ResolutionNotes)

	w = doJSON(router, http.MethodPut, "/events/1/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "resolution is final")

	w = doJSON(router, http.MethodPut, "/events/abc/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_DeleteAndPurge(t *testing.T) {
	router, events, _ := newEventRouter(t)
	ctx := context.Background()

	old := &models.SecurityEvent{Address: "203.0.113.5", EventType: models.EventXSSAttempt, Severity: models.SeverityDanger, RiskScore: 80, CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}
	require.NoError(t, events.Record(ctx, old))
	require.NoError(t, events.Resolve(ctx, old.ID, 1, "handled"))
	keep := &models.SecurityEvent{Address: "203.0.113.6", EventType: models.EventXSSAttempt, Severity: models.SeverityDanger, RiskScore: 80}
	require.NoError(t, events.Record(ctx, keep))

	w := doJSON(router, http.MethodDelete, "/events?older_than_days=90", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["removed"])

	w = doJSON(router, http.MethodDelete, "/events?older_than_days=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodDelete, "/events/2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, http.MethodDelete, "/events/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
