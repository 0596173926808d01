package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// EventHandler exposes the security event log to the operator UI.
type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// List returns a filtered page of events.
// Query params: type, severity, address, resolved, from, to, page, per_page.
func (h *EventHandler) List(c *gin.Context) {
	filter := services.EventFilter{
		EventType: c.Query("type"),
		Severity:  c.Query("severity"),
		Address:   c.Query("address"),
	}
	if raw := c.Query("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved flag"})
			return
		}
		filter.Resolved = &resolved
	}
	var ok bool
	if filter.From, ok = parseTimeParam(c, "from"); !ok {
		return
	}
	if filter.To, ok = parseTimeParam(c, "to"); !ok {
		return
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "50"))

	events, total, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"page":   filter.Page,
	})
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

// Resolve marks an event handled by the current operator.
func (h *EventHandler) Resolve(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	var req ResolveRequest
	_ = c.ShouldBindJSON(&req)

	var resolvedBy uint
	if v, ok := c.Get("user"); ok {
		if user, ok := v.(*models.User); ok {
			resolvedBy = user.ID
		}
	}

	if err := h.events.Resolve(c.Request.Context(), uint(id), resolvedBy, req.Notes); err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event resolved"})
}

// Delete removes a single event row.
func (h *EventHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := h.events.Delete(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

// Purge removes resolved events older than the given number of days.
func (h *EventHandler) Purge(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("older_than_days", "90"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid older_than_days"})
		return
	}
	removed, err := h.events.PurgeResolved(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// parseTimeParam reads an RFC3339 query param, writing a 400 on bad input.
func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " timestamp"})
		return time.Time{}, false
	}
	return t, true
}
