package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

// Setting keys the gateway consults at runtime.
const (
	SettingGatewayEnabled = "gateway.enabled"
	SettingLogThrottled   = "gateway.log_throttled"
)

// SettingsService reads and writes runtime key/value settings. The
// pipeline's enable switch lives here so operators can flip it without a
// restart; env config supplies the default when no row exists.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// GetBool returns the boolean value for key, or fallback when the row is
// missing or unreadable. The caller's context bounds the lookup; the
// pipeline consults this per request.
func (s *SettingsService) GetBool(ctx context.Context, key string, fallback bool) bool {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	return strings.EqualFold(setting.Value, "true")
}

// Set upserts a setting row.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	var existing models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.db.WithContext(ctx).Create(&models.Setting{Key: key, Value: value}).Error
		}
		return err
	}
	existing.Value = value
	return s.db.WithContext(ctx).Save(&existing).Error
}

// All returns every setting row.
func (s *SettingsService) All(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := s.db.WithContext(ctx).Order("key asc").Find(&settings).Error
	return settings, err
}
