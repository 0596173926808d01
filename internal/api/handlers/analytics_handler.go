package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/services"
)

// AnalyticsHandler serves the dashboard's aggregate view: composite
// security score, event distribution and top attacked routes.
type AnalyticsHandler struct {
	events *services.EventService
}

func NewAnalyticsHandler(events *services.EventService) *AnalyticsHandler {
	return &AnalyticsHandler{events: events}
}

// Report accepts an optional from/to range (RFC3339); the default window
// is the last 30 days.
func (h *AnalyticsHandler) Report(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = t
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range end precedes start"})
		return
	}

	report, err := h.events.Analytics(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute analytics"})
		return
	}
	c.JSON(http.StatusOK, report)
}
