// Package idempotency deduplicates WhatsApp deliveries. Providers retry
// webhooks aggressively, so an identical message from the same phone inside
// a short window replays the previous reply instead of advancing the flow
// twice.
package idempotency

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// DefaultWindow is how long a processed message shadows duplicates.
const DefaultWindow = 30 * time.Second

// Record is the cached outcome of a processed message.
type Record struct {
	Response string `json:"response"`
	Intent   string `json:"intent,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Guard is the redis-backed duplicate detector. All methods fail open: a
// redis error means the message is treated as new.
type Guard struct {
	redis  *redis.Client
	logger *logging.Logger
	window time.Duration
}

// New builds a Guard. A nil client disables deduplication entirely.
func New(client *redis.Client, logger *logging.Logger, window time.Duration) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{redis: client, logger: logger.WithComponent("idempotency"), window: window}
}

// Key derives the dedup key for one delivery.
func Key(phone, message string) string {
	norm := strings.ToLower(strings.TrimSpace(message))
	sum := md5.Sum([]byte(phone + ":" + norm))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Check returns the cached record when this exact message was already
// processed inside the window.
func (g *Guard) Check(ctx context.Context, phone, message string) (*Record, bool) {
	if g.redis == nil {
		return nil, false
	}
	data, err := g.redis.Get(ctx, Key(phone, message)).Bytes()
	if err != nil {
		if err != redis.Nil {
			g.logger.Warn("duplicate check failed", "error", err)
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		g.logger.Warn("cached record corrupt", "error", err)
		return nil, false
	}
	return &rec, true
}

// Store caches the outcome for the dedup window.
func (g *Guard) Store(ctx context.Context, phone, message string, rec Record) {
	if g.redis == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		g.logger.Warn("record marshal failed", "error", err)
		return
	}
	if err := g.redis.Set(ctx, Key(phone, message), data, g.window).Err(); err != nil {
		g.logger.Warn("record store failed", "error", err)
	}
}
