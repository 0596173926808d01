package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-sec/argus/internal/services"
)

func TestSettingsHandler_UpdateAndGet(t *testing.T) {
	db := migratedTestDB(t)
	settings := services.NewSettingsService(db)
	h := NewSettingsHandler(settings)

	router := newTestRouter()
	router.GET("/settings", asOperator(1), h.Get)
	router.PUT("/settings", asOperator(1), h.Update)

	w := doJSON(router, http.MethodPut, "/settings", UpdateSettingRequest{Key: services.SettingGatewayEnabled, Value: "false"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, settings.GetBool(context.Background(), services.SettingGatewayEnabled, true))

	w = doJSON(router, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["settings"], 1)
}

func TestSettingsHandler_ValidatesBooleanKeys(t *testing.T) {
	db := migratedTestDB(t)
	h := NewSettingsHandler(services.NewSettingsService(db))

	router := newTestRouter()
	router.PUT("/settings", h.Update)

	w := doJSON(router, http.MethodPut, "/settings", UpdateSettingRequest{Key: services.SettingGatewayEnabled, Value: "definitely"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/settings", map[string]string{"key": services.SettingGatewayEnabled})
	assert.Equal(t, http.StatusBadRequest, w.Code, "value is required")
}
