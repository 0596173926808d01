package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

var ErrTrustNotFound = errors.New("trusted address not found")

// TrustService is the durable trust registry. A live row here overrides
// bans and threat blocking unconditionally.
type TrustService struct {
	db *gorm.DB
}

func NewTrustService(db *gorm.DB) *TrustService {
	return &TrustService{db: db}
}

// IsTrusted reports whether the address holds a live trust entry.
func (s *TrustService) IsTrusted(ctx context.Context, address string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TrustedIP{}).
		Where("address = ?", address).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Trust grants the override. Granting an already-trusted address updates
// the reason in place.
func (s *TrustService) Trust(ctx context.Context, address, reason string, grantedBy *uint) (*models.TrustedIP, error) {
	var existing models.TrustedIP
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry := models.TrustedIP{
				UUID:      uuid.NewString(),
				Address:   address,
				Reason:    reason,
				GrantedBy: grantedBy,
			}
			if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
				return nil, err
			}
			return &entry, nil
		}
		return nil, err
	}

	existing.Reason = reason
	existing.GrantedBy = grantedBy
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// Untrust removes the override entirely.
func (s *TrustService) Untrust(ctx context.Context, address string) error {
	res := s.db.WithContext(ctx).Where("address = ?", address).Delete(&models.TrustedIP{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTrustNotFound
	}
	return nil
}

// List returns all trust entries, newest first.
func (s *TrustService) List(ctx context.Context) ([]models.TrustedIP, error) {
	var entries []models.TrustedIP
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&entries).Error
	return entries, err
}

// Find returns the trust entry for an address, if any.
func (s *TrustService) Find(ctx context.Context, address string) (*models.TrustedIP, error) {
	var entry models.TrustedIP
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// SeedStatic ensures the statically configured trusted addresses exist.
func (s *TrustService) SeedStatic(ctx context.Context, addresses []string) error {
	for _, addr := range addresses {
		if _, err := s.Trust(ctx, addr, "static configuration", nil); err != nil {
			return err
		}
	}
	return nil
}
