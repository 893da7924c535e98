// Package recovery escalates conversations that keep failing. Failures are
// counted per phone number in a sliding redis window; past the threshold the
// conversation is wiped and the patient is pointed at the call center
// instead of looping through broken turns.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

const (
	// DefaultThreshold is how many failed turns trip the breaker.
	DefaultThreshold = 3
	// DefaultWindow is the sliding window the failures must fall within.
	DefaultWindow = 5 * time.Minute
)

// EscalationMessage is the fixed reply sent once the breaker trips. It is
// deliberately not rendered: when the flow is this broken the renderer may
// be part of the problem.
const EscalationMessage = "نعتذر عن المشكلة التقنية. فريقنا سيتواصل معك في أقرب وقت، أو تقدر تتصل بنا مباشرة على 920033304. 🙏"

// Breaker counts failures per phone number. All redis failures are treated
// as zero failures so a redis outage never blocks patients.
type Breaker struct {
	redis     *redis.Client
	logger    *logging.Logger
	threshold int
	window    time.Duration
}

// New builds a Breaker. A nil client disables escalation.
func New(client *redis.Client, logger *logging.Logger, threshold int, window time.Duration) *Breaker {
	if logger == nil {
		logger = logging.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Breaker{
		redis:     client,
		logger:    logger.WithComponent("recovery"),
		threshold: threshold,
		window:    window,
	}
}

// Record registers a failed turn and reports whether the breaker tripped.
func (b *Breaker) Record(ctx context.Context, phone string) bool {
	if b.redis == nil {
		return false
	}

	key := failureKey(phone)
	count, err := b.redis.Incr(ctx, key).Result()
	if err != nil {
		b.logger.Warn("failure counter unavailable", "phone", phone, "error", err)
		return false
	}
	if count == 1 {
		if err := b.redis.Expire(ctx, key, b.window).Err(); err != nil {
			b.logger.Warn("failure counter expiry not set", "phone", phone, "error", err)
		}
	}

	if count >= int64(b.threshold) {
		b.logger.Error("conversation escalated after repeated failures",
			"phone", phone, "failures", count)
		b.reset(ctx, phone)
		return true
	}
	return false
}

// Reset clears the failure history after a successful turn.
func (b *Breaker) Reset(ctx context.Context, phone string) {
	if b.redis == nil {
		return
	}
	b.reset(ctx, phone)
}

func (b *Breaker) reset(ctx context.Context, phone string) {
	if err := b.redis.Del(ctx, failureKey(phone)).Err(); err != nil {
		b.logger.Warn("failure counter reset failed", "phone", phone, "error", err)
	}
}

func failureKey(phone string) string {
	return fmt.Sprintf("recovery:failures:%s", phone)
}
