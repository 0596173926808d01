package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/argus-sec/argus/internal/metrics"
)

// BanEscalator creates and lifts bans. System-issued bans are permanent;
// operator bans may carry a duration. Banning an already-banned address
// refreshes the existing row rather than stacking a duplicate.
type BanEscalator struct {
	bans     BanRepository
	notifier Notifier
}

func NewBanEscalator(bans BanRepository, notifier Notifier) *BanEscalator {
	return &BanEscalator{bans: bans, notifier: notifier}
}

// AutoBan creates a permanent, system-issued ban and fires an operator
// alert. The notification is best effort.
func (e *BanEscalator) AutoBan(ctx context.Context, address, reason string) error {
	if _, err := e.bans.Upsert(ctx, address, reason, nil, nil); err != nil {
		return fmt.Errorf("auto-ban %s: %w", address, err)
	}
	metrics.IncBanned()
	if e.notifier != nil {
		e.notifier.NotifyAsync("Address banned",
			fmt.Sprintf("Address %s was permanently banned: %s", address, reason))
	}
	return nil
}

// Ban creates or refreshes an operator-issued ban. A nil duration makes
// the ban permanent. A zero issuedBy means no operator is known, which is
// stored as null so only genuine system bans read as system-issued.
func (e *BanEscalator) Ban(ctx context.Context, address, reason string, issuedBy uint, duration *time.Duration) error {
	var expiresAt *time.Time
	if duration != nil {
		t := time.Now().Add(*duration)
		expiresAt = &t
	}
	var by *uint
	if issuedBy != 0 {
		by = &issuedBy
	}
	if _, err := e.bans.Upsert(ctx, address, reason, by, expiresAt); err != nil {
		return fmt.Errorf("ban %s: %w", address, err)
	}
	metrics.IncBanned()
	return nil
}

// Unban ends the ban by expiring the row in place; history survives for
// audit.
func (e *BanEscalator) Unban(ctx context.Context, address string) error {
	if err := e.bans.Expire(ctx, address); err != nil {
		return fmt.Errorf("unban %s: %w", address, err)
	}
	return nil
}
