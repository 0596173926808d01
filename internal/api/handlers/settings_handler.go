package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/services"
)

// SettingsHandler exposes the runtime gateway toggles.
type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	all, err := h.settings.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": all})
}

type UpdateSettingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

// Update upserts one setting. Boolean keys are validated so a typo cannot
// silently disable the pipeline.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Key {
	case services.SettingGatewayEnabled, services.SettingLogThrottled:
		if _, err := strconv.ParseBool(req.Value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a boolean"})
			return
		}
	}

	if err := h.settings.Set(c.Request.Context(), req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "setting saved"})
}
