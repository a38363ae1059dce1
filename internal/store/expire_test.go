package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgstore/internal/domain"
)

func removeOnExpiry(ctx context.Context, s *Store, g *domain.MessageGroup) {
	if err := s.RemoveMessageGroup(ctx, g.GroupID); err != nil {
		panic(err)
	}
}

func TestExpireOnCreationPolicy(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk.Now))
	s.RegisterExpiryCallback(removeOnExpiry)

	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))

	clk.Advance(1 * time.Second)
	n, err := s.ExpireMessageGroups(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	g, err := s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size())

	// A later add refreshes last-modified but not creation, so it does not
	// postpone creation-based expiry.
	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("bar")))
	clk.Advance(1100 * time.Millisecond)

	n, err = s.ExpireMessageGroups(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	g, err = s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Size())
}

func TestExpireOnIdlePolicy(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk.Now), WithTimeoutOnIdle(true))
	s.RegisterExpiryCallback(removeOnExpiry)

	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))

	clk.Advance(1 * time.Second)
	n, err := s.ExpireMessageGroups(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Older than the timeout since creation, but the add below refreshes the
	// idle reference and keeps the group alive.
	clk.Advance(2 * time.Second)
	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("bar")))
	n, err = s.ExpireMessageGroups(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	g, err := s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Size())

	clk.Advance(2 * time.Second)
	n, err = s.ExpireMessageGroups(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	g, err = s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Size())
}

func TestExpiryInvokesEveryCallback(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk.Now))

	var first, second []string
	s.RegisterExpiryCallback(func(_ context.Context, _ *Store, g *domain.MessageGroup) {
		first = append(first, g.GroupID)
	})
	s.RegisterExpiryCallback(func(_ context.Context, _ *Store, g *domain.MessageGroup) {
		second = append(second, g.GroupID)
	})

	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))
	require.NoError(t, s.AddMessageToGroup(ctx, "Y", domain.NewMessage("bar")))
	clk.Advance(time.Minute)

	n, err := s.ExpireMessageGroups(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
}

func TestExpiryCallbackSeesFullGroup(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk.Now))

	var got *domain.MessageGroup
	s.RegisterExpiryCallback(func(_ context.Context, _ *Store, g *domain.MessageGroup) {
		got = g
	})

	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))
	require.NoError(t, s.CompleteGroup(ctx, "X"))
	clk.Advance(time.Minute)

	_, err := s.ExpireMessageGroups(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Size())
	assert.True(t, got.Complete)
	assert.Equal(t, "foo", got.Messages[0].Payload)
}

func TestExpiryWithoutCallbacksMutatesNothing(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newTestStore(t, WithClock(clk.Now))

	require.NoError(t, s.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))
	clk.Advance(time.Minute)

	n, err := s.ExpireMessageGroups(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, err := s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size())
}
