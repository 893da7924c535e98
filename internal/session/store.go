// Package session persists conversation state between WhatsApp messages.
// A small in-process cache fronts redis so a restart loses nothing and a
// redis blip degrades to per-instance memory instead of dropping the
// conversation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// DefaultTTL is how long an idle conversation survives.
const DefaultTTL = 30 * time.Minute

// Record is the persisted snapshot for one phone number. Alongside the raw
// flow state it pins the identity and selection facts that must survive a
// state reset, so a recovered conversation does not re-ask what the patient
// already answered.
type Record struct {
	State *booking.State `json:"state"`

	ConfirmedName         string `json:"confirmed_name,omitempty"`
	ConfirmedNationalID   string `json:"confirmed_national_id,omitempty"`
	SelectedServiceTypeID int64  `json:"selected_service_type_id,omitempty"`
	SelectedServiceID     int64  `json:"selected_service_id,omitempty"`
	SelectedServiceName   string `json:"selected_service_name,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Pin copies durable facts out of the state after a turn.
func (r *Record) Pin() {
	if r.State == nil {
		return
	}
	// A finished or cancelled conversation releases its selections; only
	// identity carries into the next booking.
	if r.State.Step.IsTerminal() {
		r.SelectedServiceTypeID = 0
		r.SelectedServiceID = 0
		r.SelectedServiceName = ""
	}
	if r.State.Name != "" {
		r.ConfirmedName = r.State.Name
	}
	if r.State.NationalID != "" {
		r.ConfirmedNationalID = r.State.NationalID
	}
	if r.State.ServiceTypeID != 0 {
		r.SelectedServiceTypeID = r.State.ServiceTypeID
	}
	if r.State.ServiceID != 0 {
		r.SelectedServiceID = r.State.ServiceID
		r.SelectedServiceName = r.State.ServiceName
	}
}

// Inject restores pinned facts into the state before a turn runs.
func (r *Record) Inject() {
	if r.State == nil {
		return
	}
	if r.State.Name == "" && r.ConfirmedName != "" {
		r.State.Name = r.ConfirmedName
		if r.State.ArabicName == "" {
			r.State.ArabicName = r.ConfirmedName
		}
	}
	if r.State.NationalID == "" && r.ConfirmedNationalID != "" {
		r.State.NationalID = r.ConfirmedNationalID
	}
	if r.State.ServiceTypeID == 0 && r.SelectedServiceTypeID != 0 {
		r.State.ServiceTypeID = r.SelectedServiceTypeID
	}
	if r.State.ServiceID == 0 && r.SelectedServiceID != 0 {
		r.State.ServiceID = r.SelectedServiceID
		r.State.ServiceName = r.SelectedServiceName
	}
}

// Store keeps records in memory and mirrors them to redis.
type Store struct {
	redis  *redis.Client
	tracer trace.Tracer
	logger *logging.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]*localEntry
}

type localEntry struct {
	record  *Record
	savedAt time.Time
}

// Config carries Store construction options.
type Config struct {
	Redis  *redis.Client
	Tracer trace.Tracer
	Logger *logging.Logger
	TTL    time.Duration
}

// New builds a Store. Redis may be nil, which keeps sessions per-instance.
func New(cfg Config) *Store {
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("medconnect.internal.session")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Store{
		redis:  cfg.Redis,
		tracer: cfg.Tracer,
		logger: cfg.Logger.WithComponent("session"),
		ttl:    cfg.TTL,
		local:  make(map[string]*localEntry),
	}
}

// Load returns the stored record for a phone number, or nil when none
// exists or the conversation has expired.
func (s *Store) Load(ctx context.Context, phone string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()

	s.mu.RLock()
	entry, ok := s.local[phone]
	s.mu.RUnlock()
	if ok {
		if time.Since(entry.savedAt) < s.ttl {
			return entry.record, nil
		}
		s.mu.Lock()
		delete(s.local, phone)
		s.mu.Unlock()
	}

	if s.redis == nil {
		return nil, nil
	}

	data, err := s.redis.Get(ctx, sessionKey(phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode record: %w", err)
	}

	s.mu.Lock()
	s.local[phone] = &localEntry{record: &rec, savedAt: time.Now()}
	s.mu.Unlock()
	return &rec, nil
}

// Save persists the record. The in-memory copy always succeeds; a redis
// write failure is logged and swallowed so one storage blip never breaks
// the reply already composed for the patient.
func (s *Store) Save(ctx context.Context, phone string, rec *Record) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	rec.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.local[phone] = &localEntry{record: rec, savedAt: time.Now()}
	s.mu.Unlock()

	if s.redis == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal record: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(phone), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		s.logger.Warn("durable session write failed", "phone", phone, "error", err)
	}
	return nil
}

// Delete removes the conversation everywhere.
func (s *Store) Delete(ctx context.Context, phone string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	s.mu.Lock()
	delete(s.local, phone)
	s.mu.Unlock()

	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, sessionKey(phone)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete record: %w", err)
	}
	return nil
}

func sessionKey(phone string) string {
	return fmt.Sprintf("session:%s", phone)
}
