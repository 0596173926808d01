package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/gateway"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// IPHandler covers the ban/trust administrative surface and the per-IP
// detail view.
type IPHandler struct {
	bans      *services.BanService
	trust     *services.TrustService
	events    *services.EventService
	escalator *gateway.BanEscalator
}

func NewIPHandler(bans *services.BanService, trust *services.TrustService, events *services.EventService, escalator *gateway.BanEscalator) *IPHandler {
	return &IPHandler{bans: bans, trust: trust, events: events, escalator: escalator}
}

type BanRequest struct {
	Address         string `json:"address" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"` // 0 means permanent
}

// Ban creates or refreshes an operator-issued ban.
func (h *IPHandler) Ban(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if net.ParseIP(req.Address) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	var duration *time.Duration
	if req.DurationMinutes > 0 {
		d := time.Duration(req.DurationMinutes) * time.Minute
		duration = &d
	}
	if err := h.escalator.Ban(c.Request.Context(), req.Address, req.Reason, operatorID(c), duration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ban address"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "address banned"})
}

// Unban expires the live ban, keeping the row for audit.
func (h *IPHandler) Unban(c *gin.Context) {
	address := c.Param("address")
	if err := h.escalator.Unban(c.Request.Context(), address); err != nil {
		if errors.Is(err, services.ErrBanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live ban for address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unban address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "address unbanned"})
}

// ListBans returns ban rows; ?live=true narrows to live ones.
func (h *IPHandler) ListBans(c *gin.Context) {
	liveOnly := c.Query("live") == "true"
	bans, err := h.bans.List(c.Request.Context(), liveOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

type TrustRequest struct {
	Address string `json:"address" binding:"required"`
	Reason  string `json:"reason"`
}

// Trust grants the bypass-everything override.
func (h *IPHandler) Trust(c *gin.Context) {
	var req TrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if net.ParseIP(req.Address) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	var grantedBy *uint
	if id := operatorID(c); id != 0 {
		grantedBy = &id
	}
	entry, err := h.trust.Trust(c.Request.Context(), req.Address, req.Reason, grantedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trust address"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Untrust removes the override.
func (h *IPHandler) Untrust(c *gin.Context) {
	address := c.Param("address")
	if err := h.trust.Untrust(c.Request.Context(), address); err != nil {
		if errors.Is(err, services.ErrTrustNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "address not trusted"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to untrust address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "address untrusted"})
}

// ListTrusted returns all trust entries.
func (h *IPHandler) ListTrusted(c *gin.Context) {
	entries, err := h.trust.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trusted addresses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trusted": entries})
}

// Detail combines timeline, aggregate risk stats and ban/trust state for
// one address.
func (h *IPHandler) Detail(c *gin.Context) {
	address := c.Param("address")
	if net.ParseIP(address) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	ctx := c.Request.Context()

	stats, err := h.events.StatsForAddress(ctx, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load address stats"})
		return
	}
	timeline, err := h.events.Timeline(ctx, address, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load timeline"})
		return
	}
	ban, err := h.bans.Find(ctx, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ban state"})
		return
	}
	trusted, err := h.trust.Find(ctx, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trust state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":    stats,
		"timeline": timeline,
		"ban":      ban,
		"trust":    trusted,
		"banned":   ban != nil && ban.IsLive(),
		"trusted":  trusted != nil,
	})
}

// operatorID extracts the acting operator's user ID, or zero when the
// request carries no principal.
func operatorID(c *gin.Context) uint {
	if v, ok := c.Get("user"); ok {
		if user, ok := v.(*models.User); ok {
			return user.ID
		}
	}
	return 0
}
