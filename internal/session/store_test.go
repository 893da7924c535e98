package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(Config{Redis: client, TTL: time.Minute}), mr
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	state := booking.NewState("sess-1", "966501234567", "Sara", time.Now().UTC())
	state.Step = booking.StepAwaitingService
	state.ServiceTypeID = 3
	rec := &Record{State: state}
	rec.Pin()
	require.NoError(t, store.Save(ctx, state.PhoneNumber, rec))

	got, err := store.Load(ctx, state.PhoneNumber)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StepAwaitingService, got.State.Step)
	assert.Equal(t, int64(3), got.SelectedServiceTypeID)
}

func TestLoadSurvivesLocalEviction(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	state := booking.NewState("sess-2", "966501234568", "", time.Now().UTC())
	state.Name = "أحمد السالم"
	rec := &Record{State: state}
	rec.Pin()
	require.NoError(t, store.Save(ctx, state.PhoneNumber, rec))

	// Drop the in-process copy, the redis mirror must answer.
	store.mu.Lock()
	store.local = map[string]*localEntry{}
	store.mu.Unlock()

	got, err := store.Load(ctx, state.PhoneNumber)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "أحمد السالم", got.ConfirmedName)
}

func TestLoadUnknownPhoneReturnsNil(t *testing.T) {
	store, _ := newRedisStore(t)
	got, err := store.Load(context.Background(), "966500000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisExpiryEndsSession(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	state := booking.NewState("sess-3", "966501234569", "", time.Now().UTC())
	require.NoError(t, store.Save(ctx, state.PhoneNumber, &Record{State: state}))

	store.mu.Lock()
	store.local = map[string]*localEntry{}
	store.mu.Unlock()
	mr.FastForward(2 * time.Minute)

	got, err := store.Load(ctx, state.PhoneNumber)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveToleratesRedisOutage(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	mr.Close()

	state := booking.NewState("sess-4", "966501234570", "", time.Now().UTC())
	require.NoError(t, store.Save(ctx, state.PhoneNumber, &Record{State: state}))

	got, err := store.Load(ctx, state.PhoneNumber)
	require.NoError(t, err)
	require.NotNil(t, got, "memory tier still serves the record")
}

func TestInjectRestoresPinnedIdentity(t *testing.T) {
	state := booking.NewState("sess-5", "966501234571", "", time.Now().UTC())
	rec := &Record{State: state, ConfirmedName: "نورة العتيبي", ConfirmedNationalID: "1122334455"}
	rec.Inject()
	assert.Equal(t, "نورة العتيبي", state.Name)
	assert.Equal(t, "نورة العتيبي", state.ArabicName)
	assert.Equal(t, "1122334455", state.NationalID)
}

func TestInjectRestoresPinnedServiceSelection(t *testing.T) {
	state := booking.NewState("sess-6", "966501234572", "", time.Now().UTC())
	rec := &Record{
		State:                 state,
		SelectedServiceTypeID: 2,
		SelectedServiceID:     10,
		SelectedServiceName:   "تنظيف الأسنان",
	}
	rec.Inject()
	assert.Equal(t, int64(2), state.ServiceTypeID)
	assert.Equal(t, int64(10), state.ServiceID)
	assert.Equal(t, "تنظيف الأسنان", state.ServiceName)

	// A selection made this conversation is never overwritten by the pin.
	state.ServiceID, state.ServiceName = 11, "تبييض الأسنان"
	rec.Inject()
	assert.Equal(t, int64(11), state.ServiceID)
	assert.Equal(t, "تبييض الأسنان", state.ServiceName)
}

func TestPinDropsSelectionsWhenConversationEnds(t *testing.T) {
	state := booking.NewState("sess-7", "966501234573", "", time.Now().UTC())
	state.Name = "محمد العلي"
	rec := &Record{
		State:                 state,
		SelectedServiceTypeID: 1,
		SelectedServiceID:     10,
		SelectedServiceName:   "تنظيف الأسنان",
	}

	state.Step = booking.StepCompleted
	rec.Pin()

	assert.Zero(t, rec.SelectedServiceTypeID)
	assert.Zero(t, rec.SelectedServiceID)
	assert.Empty(t, rec.SelectedServiceName)
	assert.Equal(t, "محمد العلي", rec.ConfirmedName, "identity survives completion")
}
