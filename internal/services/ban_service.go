package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/argus-sec/argus/internal/models"
)

var ErrBanNotFound = errors.New("ban not found")

// BanService is the durable ban store behind the gateway's BanRepository
// interface. Upserts are idempotent on address so racing ban creations
// collapse into a single live row.
type BanService struct {
	db *gorm.DB
}

func NewBanService(db *gorm.DB) *BanService {
	return &BanService{db: db}
}

// FindLive returns the live ban for an address, or nil when none applies.
// Expired rows are ignored but retained for audit.
func (s *BanService) FindLive(ctx context.Context, address string) (*models.BlockedIP, error) {
	var ban models.BlockedIP
	err := s.db.WithContext(ctx).
		Where("address = ?", address).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&ban).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}

// Upsert creates the ban or refreshes reason/expiry on the existing row.
// The conflict target is the address unique index, so two racing creations
// collapse into one row instead of one of them failing on the constraint.
func (s *BanService) Upsert(ctx context.Context, address, reason string, issuedBy *uint, expiresAt *time.Time) (*models.BlockedIP, error) {
	ban := models.BlockedIP{
		UUID:      uuid.NewString(),
		Address:   address,
		Reason:    reason,
		IssuedBy:  issuedBy,
		ExpiresAt: expiresAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "issued_by", "expires_at", "updated_at"}),
	}).Create(&ban).Error
	if err != nil {
		return nil, err
	}
	// Re-read so the caller sees the stored row: on conflict the original
	// id, uuid and created_at survive.
	return s.Find(ctx, address)
}

// Expire ends a live ban in place; the row stays for history.
func (s *BanService) Expire(ctx context.Context, address string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.BlockedIP{}).
		Where("address = ?", address).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Update("expires_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBanNotFound
	}
	return nil
}

// Find returns the ban row for an address regardless of liveness.
func (s *BanService) Find(ctx context.Context, address string) (*models.BlockedIP, error) {
	var ban models.BlockedIP
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&ban).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ban, nil
}

// List returns ban rows, live ones first, newest first within each group.
func (s *BanService) List(ctx context.Context, liveOnly bool) ([]models.BlockedIP, error) {
	var bans []models.BlockedIP
	q := s.db.WithContext(ctx).Order("created_at desc")
	if liveOnly {
		q = q.Where("expires_at IS NULL OR expires_at > ?", time.Now())
	}
	err := q.Find(&bans).Error
	return bans, err
}

// PurgeExpired removes expired rows older than the audit horizon.
func (s *BanService) PurgeExpired(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon)
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Delete(&models.BlockedIP{})
	return res.RowsAffected, res.Error
}

// SeedStatic ensures the statically configured blocked addresses carry a
// permanent ban.
func (s *BanService) SeedStatic(ctx context.Context, addresses []string) error {
	for _, addr := range addresses {
		if _, err := s.Upsert(ctx, addr, "static configuration", nil, nil); err != nil {
			return err
		}
	}
	return nil
}
