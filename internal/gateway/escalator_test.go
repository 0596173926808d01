package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanEscalator_AutoBanIsPermanent(t *testing.T) {
	bans := newFakeBans()
	notifier := &fakeNotifier{}
	e := NewBanEscalator(bans, notifier)

	require.NoError(t, e.AutoBan(context.Background(), "203.0.113.5", "repeated attack detected (sqli)"))

	ban, err := bans.FindLive(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.True(t, ban.IsPermanent())
	assert.Nil(t, ban.IssuedBy)
	assert.Len(t, notifier.messages, 1)
}

func TestBanEscalator_AutoBanIdempotent(t *testing.T) {
	bans := newFakeBans()
	e := NewBanEscalator(bans, nil)

	require.NoError(t, e.AutoBan(context.Background(), "203.0.113.5", "first"))
	require.NoError(t, e.AutoBan(context.Background(), "203.0.113.5", "second"))

	ban, err := bans.FindLive(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, "second", ban.Reason, "re-banning refreshes the row in place")
	assert.Len(t, bans.rows, 1)
}

func TestBanEscalator_OperatorBanWithDuration(t *testing.T) {
	bans := newFakeBans()
	e := NewBanEscalator(bans, nil)

	d := 30 * time.Minute
	require.NoError(t, e.Ban(context.Background(), "203.0.113.5", "manual block", 4, &d))

	ban, err := bans.FindLive(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.False(t, ban.IsPermanent())
	require.NotNil(t, ban.IssuedBy)
	assert.Equal(t, uint(4), *ban.IssuedBy)
	assert.WithinDuration(t, time.Now().Add(d), *ban.ExpiresAt, 2*time.Second)
}

func TestBanEscalator_UnknownOperatorStoredAsNull(t *testing.T) {
	bans := newFakeBans()
	e := NewBanEscalator(bans, nil)

	require.NoError(t, e.Ban(context.Background(), "203.0.113.5", "manual block", 0, nil))

	ban, err := bans.FindLive(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Nil(t, ban.IssuedBy, "zero is not a user id; unknown issuers read the same as system bans")
}

func TestBanEscalator_UnbanExpiresInPlace(t *testing.T) {
	bans := newFakeBans()
	e := NewBanEscalator(bans, nil)

	require.NoError(t, e.AutoBan(context.Background(), "203.0.113.5", "attack"))
	require.NoError(t, e.Unban(context.Background(), "203.0.113.5"))

	live, err := bans.FindLive(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	assert.Nil(t, live)
	assert.Len(t, bans.rows, 1, "history survives the unban")

	assert.Error(t, e.Unban(context.Background(), "203.0.113.5"), "unbanning twice reports the missing live ban")
}
