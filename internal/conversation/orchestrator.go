package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
	"github.com/medconnect/whatsapp-booking-agent/internal/idempotency"
	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
	"github.com/medconnect/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/medconnect/whatsapp-booking-agent/internal/recovery"
	"github.com/medconnect/whatsapp-booking-agent/internal/session"
	"github.com/medconnect/whatsapp-booking-agent/internal/textutil"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// busyMessage is the last-resort reply when a turn cannot run at all.
const busyMessage = "عذراً، النظام مشغول حالياً. حاول بعد قليل أو اتصل بنا على 920033304."

// Engine is the booking flow surface the orchestrator drives.
type Engine interface {
	Run(ctx context.Context, s *booking.State, message string, it intent.Intent) error
}

// Orchestrator processes inbound messages end to end.
type Orchestrator struct {
	engine      Engine
	classifier  intent.Classifier
	sessions    *session.Store
	dedup       *idempotency.Guard
	breaker     *recovery.Breaker
	transcripts *TranscriptStore
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger

	turnTimeout time.Duration
	countryCode string
}

// Config wires an Orchestrator.
type Config struct {
	Engine      Engine
	Classifier  intent.Classifier
	Sessions    *session.Store
	Dedup       *idempotency.Guard
	Breaker     *recovery.Breaker
	Transcripts *TranscriptStore
	Metrics     *metrics.BookingMetrics
	Logger      *logging.Logger
	TurnTimeout time.Duration
	CountryCode string
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "966"
	}
	if cfg.Classifier == nil {
		cfg.Classifier = intent.StaticClassifier{}
	}
	return &Orchestrator{
		engine:      cfg.Engine,
		classifier:  cfg.Classifier,
		sessions:    cfg.Sessions,
		dedup:       cfg.Dedup,
		breaker:     cfg.Breaker,
		transcripts: cfg.Transcripts,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithComponent("conversation"),
		turnTimeout: cfg.TurnTimeout,
		countryCode: cfg.CountryCode,
	}
}

// ProcessMessage runs one inbound message through the flow and returns the
// reply. It never returns an error: every failure path degrades to a
// patient-readable message.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req Request) Response {
	start := time.Now()
	phone := textutil.NormalizePhone(req.PhoneNumber, o.countryCode)
	message := strings.TrimSpace(req.Message)

	rec, err := o.sessions.Load(ctx, phone)
	if err != nil {
		o.logger.Warn("session load failed, starting fresh", "phone", phone, "error", err)
		rec = nil
	}

	// Duplicate webhook deliveries replay the previous reply verbatim.
	// The final yes/no exchange is exempt: a patient repeating their
	// confirmation must still land.
	inConfirmation := rec != nil && rec.State != nil && rec.State.Step.InConfirmation()
	if o.dedup != nil && !inConfirmation {
		if cached, dup := o.dedup.Check(ctx, phone, message); dup {
			o.metrics.ObserveIdempotentReplay()
			o.metrics.ObserveTurn("replay", time.Since(start).Seconds())
			return Response{
				Response:  cached.Response,
				Intent:    cached.Intent,
				Status:    cached.Status,
				SessionID: sessionID(rec, req),
			}
		}
	}

	it, confidence, err := o.classifier.Classify(ctx, message)
	if err != nil {
		o.logger.Warn("intent classification failed", "error", err)
		it = intent.Unknown
	}

	if rec == nil || rec.State == nil {
		state := booking.NewState(newSessionID(req), phone, req.SenderName, time.Now().UTC())
		rec = &session.Record{State: state}
	}
	rec.Inject()
	state := rec.State
	state.Reply = nil

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	runErr := o.engine.Run(turnCtx, state, message, it)
	if runErr != nil {
		o.logger.Error("turn failed", "phone", phone, "intent", string(it),
			"confidence", confidence, "error", runErr)
		return o.failTurn(ctx, phone, rec, req, start)
	}

	// Recoverable flow failures feed the escalation counter, clean turns
	// clear it.
	if o.breaker != nil {
		if state.Step == booking.StepErrorRecovery || state.Step.IsError() {
			if o.breaker.Record(ctx, phone) {
				return o.escalate(ctx, phone, rec, req, start)
			}
		} else {
			o.breaker.Reset(ctx, phone)
		}
	}

	reply := strings.Join(state.Reply, "\n\n")
	status := statusFor(state.Step)
	resp := Response{
		Response:  reply,
		Intent:    string(it),
		Status:    status,
		SessionID: state.SessionID,
		Step:      string(state.Step),
	}

	rec.Pin()
	if err := o.sessions.Save(ctx, phone, rec); err != nil {
		o.logger.Warn("session save failed", "phone", phone, "error", err)
	}
	o.recordTranscript(ctx, phone, message, reply, state.Step)

	if o.dedup != nil {
		o.dedup.Store(ctx, phone, message, idempotency.Record{
			Response: reply, Intent: string(it), Status: status,
		})
	}
	o.metrics.ObserveTurn(status, time.Since(start).Seconds())
	return resp
}

// failTurn answers a turn that broke outright, counting it toward
// escalation.
func (o *Orchestrator) failTurn(ctx context.Context, phone string, rec *session.Record, req Request, start time.Time) Response {
	if o.breaker != nil && o.breaker.Record(ctx, phone) {
		return o.escalate(ctx, phone, rec, req, start)
	}
	o.metrics.ObserveTurn("error", time.Since(start).Seconds())
	return Response{
		Response:  busyMessage,
		Status:    "error",
		SessionID: sessionID(rec, req),
	}
}

// escalate wipes the broken conversation and sends the fixed call-center
// handoff.
func (o *Orchestrator) escalate(ctx context.Context, phone string, rec *session.Record, req Request, start time.Time) Response {
	if err := o.sessions.Delete(ctx, phone); err != nil {
		o.logger.Warn("session wipe failed during escalation", "phone", phone, "error", err)
	}
	o.transcripts.EndConversation(ctx, phone, "escalated")
	o.metrics.ObserveRecoveryTrip()
	o.metrics.ObserveTurn("escalated", time.Since(start).Seconds())
	return Response{
		Response:  recovery.EscalationMessage,
		Status:    "escalated",
		SessionID: sessionID(rec, req),
	}
}

func (o *Orchestrator) recordTranscript(ctx context.Context, phone, inbound, reply string, step booking.Step) {
	if o.transcripts == nil {
		return
	}
	now := time.Now().UTC()
	if err := o.transcripts.AppendMessage(ctx, phone, TranscriptMessage{
		Role: "user", Body: inbound, From: phone, Timestamp: now,
	}); err != nil {
		o.logger.Warn("transcript write failed", "phone", phone, "error", err)
		return
	}
	if reply != "" {
		if err := o.transcripts.AppendMessage(ctx, phone, TranscriptMessage{
			Role: "assistant", Body: reply, To: phone, Timestamp: now,
		}); err != nil {
			o.logger.Warn("transcript write failed", "phone", phone, "error", err)
		}
	}
	if step.IsTerminal() {
		o.transcripts.EndConversation(ctx, phone, string(step))
	}
}

// statusFor maps the post-turn step to the channel-facing status.
func statusFor(step booking.Step) string {
	switch {
	case step == booking.StepAwaitingTimeSlot:
		return "showing_time_slots"
	case step.IsWaiting():
		return string(step)
	case step == booking.StepCompleted:
		return "completed"
	case step == booking.StepCancelled || step == booking.StepRegistrationCancelled:
		return "cancelled"
	case step == booking.StepErrorRecovery:
		return "recovered"
	// Validation failures recover in place, but the channel still reports
	// them as errors.
	case step == booking.StepValidationFailed, step.IsError():
		return "error"
	}
	return "in_progress"
}

func sessionID(rec *session.Record, req Request) string {
	if rec != nil && rec.State != nil && rec.State.SessionID != "" {
		return rec.State.SessionID
	}
	return newSessionID(req)
}

func newSessionID(req Request) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	return uuid.NewString()
}
