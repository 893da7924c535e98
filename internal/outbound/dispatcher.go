// Package outbound delivers agent replies back to WhatsApp through a
// bounded worker pool, so webhook handling never blocks on the Cloud API.
package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/medconnect/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/medconnect/whatsapp-booking-agent/internal/whatsapp"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// Sender sends one text message. *whatsapp.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResult, error)
}

// Reply is one queued outbound message.
type Reply struct {
	To   string
	Body string
}

// Dispatcher fans queued replies out to a fixed set of sender workers.
type Dispatcher struct {
	sender      Sender
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
	queue       chan Reply
	workers     int
	maxAttempts int
	baseDelay   time.Duration
	wg          sync.WaitGroup
	startOnce   sync.Once
}

func New(sender Sender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sender:      sender,
		logger:      logger.WithComponent("outbound"),
		queue:       make(chan Reply, 256),
		workers:     2,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
	}
}

func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) WithQueueSize(n int) *Dispatcher {
	if n > 0 {
		d.queue = make(chan Reply, n)
	}
	return d
}

func (d *Dispatcher) WithMaxAttempts(n int) *Dispatcher {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Dispatcher) WithBaseDelay(delay time.Duration) *Dispatcher {
	if delay > 0 {
		d.baseDelay = delay
	}
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.BookingMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Start launches the worker pool. Safe to call once; workers stop when ctx
// is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run(ctx)
		}
	})
}

// Enqueue queues a reply for delivery. It never blocks; a full queue drops
// the reply and reports false.
func (d *Dispatcher) Enqueue(to, body string) bool {
	if d == nil || d.sender == nil || to == "" || body == "" {
		return false
	}
	select {
	case d.queue <- Reply{To: to, Body: body}:
		return true
	default:
		d.logger.Error("outbound queue full, dropping reply", "to", to)
		d.metrics.ObserveOutboundSend("dropped")
		return false
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case reply := <-d.queue:
			d.deliver(ctx, reply)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, reply Reply) {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(d.baseDelay * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		result, err := d.sender.SendText(ctx, reply.To, reply.Body)
		if err == nil {
			d.metrics.ObserveOutboundSend("ok")
			d.logger.Debug("reply delivered", "to", reply.To, "message_id", result.MessageID)
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
	}
	d.metrics.ObserveOutboundSend("failed")
	d.logger.Error("reply delivery failed", "to", reply.To, "attempts", d.maxAttempts, "error", lastErr)
}
