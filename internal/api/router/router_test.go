package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconnect/whatsapp-booking-agent/internal/booking"
	"github.com/medconnect/whatsapp-booking-agent/internal/conversation"
	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
	"github.com/medconnect/whatsapp-booking-agent/internal/session"
)

type echoEngine struct{}

func (echoEngine) Run(_ context.Context, s *booking.State, message string, _ intent.Intent) error {
	s.Say("received: " + message)
	s.Step = booking.StepAwaitingService
	return nil
}

func newRouter(t *testing.T, rate float64) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	orch := conversation.New(conversation.Config{
		Engine:   echoEngine{},
		Sessions: session.New(session.Config{Redis: client, TTL: 30 * time.Minute}),
	})
	return New(&Config{
		Webhook:      conversation.NewHandler(orch, "verify-me", "", nil),
		WebhookRate:  rate,
		WebhookBurst: 2,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newRouter(t, 0)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestReadyEndpointWithoutDatabase(t *testing.T) {
	r := newRouter(t, 0)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookVerificationRouted(t *testing.T) {
	r := newRouter(t, 0)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc", rr.Body.String())
}

func TestMessageAPIRouted(t *testing.T) {
	r := newRouter(t, 0)
	body := `{"message":"مرحبا","phone_number":"0501234567"}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "received:")
}

func TestWebhookRateLimit(t *testing.T) {
	r := newRouter(t, 0.001)
	body := `{"message":"مرحبا","phone_number":"0501234567"}`

	var last int
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
		req.Header.Set("X-Real-Ip", "10.0.0.9")
		r.ServeHTTP(rr, req)
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
