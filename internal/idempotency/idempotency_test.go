package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, nil, 30*time.Second), mr
}

func TestDuplicateReplaysStoredResponse(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	_, dup := g.Check(ctx, "966501234567", "احجز موعد")
	assert.False(t, dup)

	g.Store(ctx, "966501234567", "احجز موعد", Record{Response: "تمام", Status: "in_progress"})

	rec, dup := g.Check(ctx, "966501234567", "احجز موعد")
	require.True(t, dup)
	assert.Equal(t, "تمام", rec.Response)
	assert.Equal(t, "in_progress", rec.Status)
}

func TestKeyNormalizesCaseAndWhitespace(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	g.Store(ctx, "966501234567", "  Book NOW ", Record{Response: "ok"})
	_, dup := g.Check(ctx, "966501234567", "book now")
	assert.True(t, dup)
}

func TestDifferentPhonesNeverCollide(t *testing.T) {
	g, _ := newGuard(t)
	ctx := context.Background()

	g.Store(ctx, "966501234567", "نعم", Record{Response: "ok"})
	_, dup := g.Check(ctx, "966507654321", "نعم")
	assert.False(t, dup)
}

func TestWindowExpiry(t *testing.T) {
	g, mr := newGuard(t)
	ctx := context.Background()

	g.Store(ctx, "966501234567", "نعم", Record{Response: "ok"})
	mr.FastForward(time.Minute)

	_, dup := g.Check(ctx, "966501234567", "نعم")
	assert.False(t, dup)
}

func TestFailsOpenOnRedisOutage(t *testing.T) {
	g, mr := newGuard(t)
	ctx := context.Background()
	mr.Close()

	_, dup := g.Check(ctx, "966501234567", "نعم")
	assert.False(t, dup)
	g.Store(ctx, "966501234567", "نعم", Record{Response: "ok"})
}

func TestNilClientDisablesDedup(t *testing.T) {
	g := New(nil, nil, 0)
	_, dup := g.Check(context.Background(), "966501234567", "نعم")
	assert.False(t, dup)
}
