package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
	"github.com/medconnect/whatsapp-booking-agent/internal/idempotency"
	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
	"github.com/medconnect/whatsapp-booking-agent/internal/recovery"
	"github.com/medconnect/whatsapp-booking-agent/internal/session"
)

// stubEngine runs a canned turn.
type stubEngine struct {
	run   func(s *booking.State, message string, it intent.Intent) error
	calls int
}

func (e *stubEngine) Run(_ context.Context, s *booking.State, message string, it intent.Intent) error {
	e.calls++
	if e.run == nil {
		s.Say("تمام")
		s.Step = booking.StepAwaitingService
		return nil
	}
	return e.run(s, message, it)
}

func newOrchestrator(t *testing.T, eng Engine) (*Orchestrator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(Config{
		Engine:   eng,
		Sessions: session.New(session.Config{Redis: client, TTL: 30 * time.Minute}),
		Dedup:    idempotency.New(client, nil, 30*time.Second),
		Breaker:  recovery.New(client, nil, 3, 5*time.Minute),
	}), mr
}

func TestProcessMessageHappyPath(t *testing.T) {
	eng := &stubEngine{}
	o, _ := newOrchestrator(t, eng)

	resp := o.ProcessMessage(context.Background(), Request{
		Message: "ابغى احجز", PhoneNumber: "0501234567", SenderName: "Sara",
	})

	assert.Equal(t, "تمام", resp.Response)
	assert.Equal(t, "awaiting_service", resp.Status)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 1, eng.calls)
}

func TestStateSurvivesBetweenTurns(t *testing.T) {
	eng := &stubEngine{run: func(s *booking.State, _ string, _ intent.Intent) error {
		s.ServiceID++
		s.Say("ok")
		s.Step = booking.StepAwaitingService
		return nil
	}}
	o, _ := newOrchestrator(t, eng)
	ctx := context.Background()

	o.ProcessMessage(ctx, Request{Message: "واحد", PhoneNumber: "0501234567"})
	o.ProcessMessage(ctx, Request{Message: "اثنين", PhoneNumber: "0501234567"})

	rec, err := o.sessions.Load(ctx, "966501234567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2), rec.State.ServiceID)
}

func TestDuplicateDeliveryReplaysWithoutRunningFlow(t *testing.T) {
	eng := &stubEngine{}
	o, _ := newOrchestrator(t, eng)
	ctx := context.Background()

	first := o.ProcessMessage(ctx, Request{Message: "احجز", PhoneNumber: "0501234567"})
	second := o.ProcessMessage(ctx, Request{Message: "احجز", PhoneNumber: "0501234567"})

	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, 1, eng.calls, "flow must not advance on a duplicate")
}

func TestConfirmationStepBypassesDedup(t *testing.T) {
	eng := &stubEngine{run: func(s *booking.State, _ string, _ intent.Intent) error {
		s.Say("هل تأكد الحجز؟")
		s.Step = booking.StepAwaitingConfirmation
		return nil
	}}
	o, _ := newOrchestrator(t, eng)
	ctx := context.Background()

	o.ProcessMessage(ctx, Request{Message: "نعم", PhoneNumber: "0501234567"})
	o.ProcessMessage(ctx, Request{Message: "نعم", PhoneNumber: "0501234567"})

	assert.Equal(t, 2, eng.calls, "confirmation replies must always reach the flow")
}

func TestBrokenTurnReturnsBusyMessage(t *testing.T) {
	eng := &stubEngine{run: func(_ *booking.State, _ string, _ intent.Intent) error {
		return errors.New("backend exploded")
	}}
	o, _ := newOrchestrator(t, eng)

	resp := o.ProcessMessage(context.Background(), Request{Message: "احجز", PhoneNumber: "0501234567"})
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Response, "920033304")
}

func TestThirdBrokenTurnEscalatesAndWipesSession(t *testing.T) {
	eng := &stubEngine{run: func(_ *booking.State, _ string, _ intent.Intent) error {
		return errors.New("backend exploded")
	}}
	o, _ := newOrchestrator(t, eng)
	ctx := context.Background()

	o.ProcessMessage(ctx, Request{Message: "احجز", PhoneNumber: "0501234567"})
	o.ProcessMessage(ctx, Request{Message: "احجز مرة ثانية", PhoneNumber: "0501234567"})
	resp := o.ProcessMessage(ctx, Request{Message: "ليش ما يشتغل", PhoneNumber: "0501234567"})

	assert.Equal(t, "escalated", resp.Status)
	assert.Equal(t, recovery.EscalationMessage, resp.Response)

	rec, err := o.sessions.Load(ctx, "966501234567")
	require.NoError(t, err)
	assert.Nil(t, rec, "escalation wipes the conversation")
}

func TestCleanTurnResetsFailureCounter(t *testing.T) {
	fail := true
	eng := &stubEngine{run: func(s *booking.State, _ string, _ intent.Intent) error {
		if fail {
			return errors.New("backend exploded")
		}
		s.Say("تمام")
		s.Step = booking.StepAwaitingService
		return nil
	}}
	o, _ := newOrchestrator(t, eng)
	ctx := context.Background()

	o.ProcessMessage(ctx, Request{Message: "هلا", PhoneNumber: "0501234567"})
	o.ProcessMessage(ctx, Request{Message: "مرحبا", PhoneNumber: "0501234567"})
	fail = false
	o.ProcessMessage(ctx, Request{Message: "احجز", PhoneNumber: "0501234567"})
	fail = true
	resp := o.ProcessMessage(ctx, Request{Message: "هلا والله", PhoneNumber: "0501234567"})

	// Two failures, a clean turn, then one failure: no escalation yet.
	assert.Equal(t, "error", resp.Status)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		step booking.Step
		want string
	}{
		{booking.StepAwaitingTimeSlot, "showing_time_slots"},
		{booking.StepAwaitingService, "awaiting_service"},
		{booking.StepCompleted, "completed"},
		{booking.StepCancelled, "cancelled"},
		{booking.StepErrorRecovery, "recovered"},
		{booking.StepValidationFailed, "error"},
		{booking.StepFetchServices, "in_progress"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.step), string(tc.step))
	}
}
