package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newBreaker(t *testing.T) (*Breaker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, nil, 3, 5*time.Minute), mr
}

func TestTripsOnThirdFailure(t *testing.T) {
	b, _ := newBreaker(t)
	ctx := context.Background()

	assert.False(t, b.Record(ctx, "966501234567"))
	assert.False(t, b.Record(ctx, "966501234567"))
	assert.True(t, b.Record(ctx, "966501234567"))

	// Tripping resets the counter, the next failure starts a new window.
	assert.False(t, b.Record(ctx, "966501234567"))
}

func TestWindowExpiryForgetsFailures(t *testing.T) {
	b, mr := newBreaker(t)
	ctx := context.Background()

	b.Record(ctx, "966501234567")
	b.Record(ctx, "966501234567")
	mr.FastForward(6 * time.Minute)

	assert.False(t, b.Record(ctx, "966501234567"))
	assert.False(t, b.Record(ctx, "966501234567"))
}

func TestResetClearsHistory(t *testing.T) {
	b, _ := newBreaker(t)
	ctx := context.Background()

	b.Record(ctx, "966501234567")
	b.Record(ctx, "966501234567")
	b.Reset(ctx, "966501234567")

	assert.False(t, b.Record(ctx, "966501234567"))
	assert.False(t, b.Record(ctx, "966501234567"))
}

func TestPhonesAreIsolated(t *testing.T) {
	b, _ := newBreaker(t)
	ctx := context.Background()

	b.Record(ctx, "966501234567")
	b.Record(ctx, "966501234567")
	assert.False(t, b.Record(ctx, "966507654321"))
}

func TestFailsOpenWithoutRedis(t *testing.T) {
	b := New(nil, nil, 0, 0)
	assert.False(t, b.Record(context.Background(), "966501234567"))
}

func TestFailsOpenOnRedisOutage(t *testing.T) {
	b, mr := newBreaker(t)
	mr.Close()
	assert.False(t, b.Record(context.Background(), "966501234567"))
}
