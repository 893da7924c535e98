package conversation

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconnect/whatsapp-booking-agent/internal/session"
)

func newWebhookHandler(t *testing.T) (*Handler, *stubEngine) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	eng := &stubEngine{}
	orch := New(Config{
		Engine:   eng,
		Sessions: session.New(session.Config{Redis: client, TTL: 30 * time.Minute}),
	})
	return NewHandler(orch, "verify-me", "hook-secret", nil), eng
}

func TestVerifyHandshake(t *testing.T) {
	h, _ := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()
	h.Verify(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "12345", rr.Body.String())
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	h, _ := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rr := httptest.NewRecorder()
	h.Verify(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func webhookBody(t *testing.T, from, name, text string) []byte {
	t.Helper()
	payload := map[string]any{
		"entry": []any{map[string]any{
			"changes": []any{map[string]any{
				"value": map[string]any{
					"contacts": []any{map[string]any{
						"wa_id":   from,
						"profile": map[string]any{"name": name},
					}},
					"messages": []any{map[string]any{
						"from": from,
						"id":   "wamid.1",
						"type": "text",
						"text": map[string]any{"body": text},
					}},
				},
			}},
		}},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestReceiveProcessesTextMessage(t *testing.T) {
	h, eng := newWebhookHandler(t)
	body := webhookBody(t, "966501234567", "Sara", "ابغى احجز")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("hook-secret", body))
	rr := httptest.NewRecorder()
	h.Receive(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, eng.calls)

	var out struct {
		Responses []Response `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Responses, 1)
	assert.Equal(t, "تمام", out.Responses[0].Response)
}

type sinkReply struct {
	to   string
	body string
}

type recordingSink struct {
	replies []sinkReply
}

func (r *recordingSink) Enqueue(to, body string) bool {
	r.replies = append(r.replies, sinkReply{to: to, body: body})
	return true
}

func TestReceiveForwardsReplyToSink(t *testing.T) {
	h, _ := newWebhookHandler(t)
	sink := &recordingSink{}
	h.WithReplySink(sink)
	body := webhookBody(t, "966501234567", "Sara", "ابغى احجز")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("hook-secret", body))
	rr := httptest.NewRecorder()
	h.Receive(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, sink.replies, 1)
	assert.Equal(t, "966501234567", sink.replies[0].to)
	assert.Equal(t, "تمام", sink.replies[0].body)
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	h, eng := newWebhookHandler(t)
	body := webhookBody(t, "966501234567", "Sara", "ابغى احجز")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rr := httptest.NewRecorder()
	h.Receive(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, eng.calls)
}

func TestReceiveSkipsNonTextMessages(t *testing.T) {
	h, eng := newWebhookHandler(t)
	body := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"966501234567","type":"image"}]}}]}]}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("hook-secret", body))
	rr := httptest.NewRecorder()
	h.Receive(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, eng.calls)
}

func TestMessageEndpoint(t *testing.T) {
	h, _ := newWebhookHandler(t)
	body := `{"message":"احجز موعد","phone_number":"0501234567"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Message(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "تمام", resp.Response)
	assert.NotEmpty(t, resp.SessionID)
}

func TestMessageEndpointValidatesInput(t *testing.T) {
	h, _ := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"message":""}`))
	rr := httptest.NewRecorder()
	h.Message(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
