package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanService_UpsertAndFindLive(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	ban, err := s.Upsert(ctx, "203.0.113.5", "repeated attacks", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ban.UUID)
	assert.True(t, ban.IsPermanent())

	live, err := s.FindLive(ctx, "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, ban.ID, live.ID)

	none, err := s.FindLive(ctx, "203.0.113.99")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBanService_UpsertRefreshesExistingRow(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	first, err := s.Upsert(ctx, "203.0.113.5", "first", nil, nil)
	require.NoError(t, err)

	operator := uint(3)
	expiry := time.Now().Add(time.Hour)
	second, err := s.Upsert(ctx, "203.0.113.5", "second", &operator, &expiry)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "one address, one row")
	assert.Equal(t, "second", second.Reason)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBanService_UpsertRacesCollapseToOneRow(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	const racers = 8
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			_, err := s.Upsert(ctx, "203.0.113.5", "repeated attacks", nil, nil)
			errs <- err
		}()
	}
	for i := 0; i < racers; i++ {
		require.NoError(t, <-errs, "a racing upsert must not fail on the address index")
	}

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBanService_ExpiredBanNotLive(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	_, err := s.Upsert(ctx, "203.0.113.5", "short ban", nil, &past)
	require.NoError(t, err)

	live, err := s.FindLive(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.Nil(t, live)

	row, err := s.Find(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.NotNil(t, row, "expired rows stay for audit")
}

func TestBanService_Expire(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	_, err := s.Upsert(ctx, "203.0.113.5", "attack", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Expire(ctx, "203.0.113.5"))

	live, err := s.FindLive(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.Nil(t, live)

	assert.ErrorIs(t, s.Expire(ctx, "203.0.113.5"), ErrBanNotFound)
	assert.ErrorIs(t, s.Expire(ctx, "203.0.113.99"), ErrBanNotFound)
}

func TestBanService_ListLiveOnly(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	_, err := s.Upsert(ctx, "203.0.113.5", "live", nil, nil)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	_, err = s.Upsert(ctx, "203.0.113.6", "expired", nil, &past)
	require.NoError(t, err)

	live, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "203.0.113.5", live[0].Address)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBanService_PurgeExpired(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_, err := s.Upsert(ctx, "203.0.113.5", "old expired", nil, &old)
	require.NoError(t, err)
	recent := time.Now().Add(-time.Minute)
	_, err = s.Upsert(ctx, "203.0.113.6", "recently expired", nil, &recent)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "203.0.113.7", "permanent", nil, nil)
	require.NoError(t, err)

	purged, err := s.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "recent history and permanent bans survive")
}

func TestBanService_SeedStatic(t *testing.T) {
	s := NewBanService(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.SeedStatic(ctx, []string{"203.0.113.5", "203.0.113.6"}))
	require.NoError(t, s.SeedStatic(ctx, []string{"203.0.113.5"}), "seeding is idempotent")

	all, err := s.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
