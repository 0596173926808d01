package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/argus-sec/argus/internal/models"
)

// In-memory repository fakes. The pipeline only sees the narrow
// interfaces, so tests can run without a database.

type fakeTrust struct {
	mu      sync.Mutex
	trusted map[string]bool
	err     error
}

func newFakeTrust(addresses ...string) *fakeTrust {
	f := &fakeTrust{trusted: map[string]bool{}}
	for _, a := range addresses {
		f.trusted[a] = true
	}
	return f
}

func (f *fakeTrust) IsTrusted(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.trusted[address], nil
}

type fakeBans struct {
	mu   sync.Mutex
	rows map[string]*models.BlockedIP
	err  error
}

func newFakeBans() *fakeBans {
	return &fakeBans{rows: map[string]*models.BlockedIP{}}
}

func (f *fakeBans) FindLive(_ context.Context, address string) (*models.BlockedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ban, ok := f.rows[address]
	if !ok || !ban.IsLive() {
		return nil, nil
	}
	return ban, nil
}

func (f *fakeBans) Upsert(_ context.Context, address, reason string, issuedBy *uint, expiresAt *time.Time) (*models.BlockedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if existing, ok := f.rows[address]; ok {
		existing.Reason = reason
		existing.IssuedBy = issuedBy
		existing.ExpiresAt = expiresAt
		return existing, nil
	}
	ban := &models.BlockedIP{Address: address, Reason: reason, IssuedBy: issuedBy, ExpiresAt: expiresAt}
	f.rows[address] = ban
	return ban, nil
}

func (f *fakeBans) Expire(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ban, ok := f.rows[address]
	if !ok || !ban.IsLive() {
		return errors.New("ban not found")
	}
	now := time.Now()
	ban.ExpiresAt = &now
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	audits []*models.RateLimitAudit
	err    error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{}
}

func (f *fakeEvents) Record(_ context.Context, ev *models.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) CountAttacksSince(_ context.Context, address string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var count int64
	for _, ev := range f.events {
		if ev.Address == address && ev.IsAttack() && !ev.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeEvents) RecordAudit(_ context.Context, audit *models.RateLimitAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.audits = append(f.audits, audit)
	return nil
}

func (f *fakeEvents) byType(eventType string) []*models.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SecurityEvent
	for _, ev := range f.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyAsync(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, title+": "+message)
}

type fakeResolver struct {
	users map[string]*models.User
}

func (f *fakeResolver) ResolveToken(token string) (*models.User, error) {
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}
