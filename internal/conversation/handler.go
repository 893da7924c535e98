package conversation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// ReplySink queues a reply for asynchronous delivery back to the sender.
type ReplySink interface {
	Enqueue(to, body string) bool
}

// Handler exposes the WhatsApp webhook surface.
type Handler struct {
	orch        *Orchestrator
	verifyToken string
	secret      string
	replies     ReplySink
	logger      *logging.Logger
}

// NewHandler wires the webhook handler.
func NewHandler(orch *Orchestrator, verifyToken, secret string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orch:        orch,
		verifyToken: verifyToken,
		secret:      secret,
		logger:      logger.WithComponent("webhook"),
	}
}

// WithReplySink routes webhook replies through an outbound sender instead of
// only echoing them in the HTTP response.
func (h *Handler) WithReplySink(sink ReplySink) *Handler {
	h.replies = sink
	return h
}

// Verify answers the webhook subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	h.logger.Warn("webhook verification rejected", "mode", mode)
	http.Error(w, "verification failed", http.StatusForbidden)
}

// webhookPayload is the WhatsApp Business webhook envelope, trimmed to the
// fields the flow reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles webhook deliveries. Replies for every text message in the
// batch are returned in order; non-text messages are acknowledged and
// skipped.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if h.secret != "" && !h.validSignature(r.Header.Get("X-Hub-Signature-256"), body) {
		h.logger.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	var responses []Response
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			senderNames := map[string]string{}
			for _, c := range change.Value.Contacts {
				senderNames[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				resp := h.orch.ProcessMessage(r.Context(), Request{
					Message:     msg.Text.Body,
					PhoneNumber: msg.From,
					SenderName:  senderNames[msg.From],
				})
				if h.replies != nil && resp.Response != "" {
					h.replies.Enqueue(msg.From, resp.Response)
				}
				responses = append(responses, resp)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"responses": responses})
}

// Message handles the direct API used by the clinic dashboard and tests.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.PhoneNumber) == "" {
		http.Error(w, "message and phone_number are required", http.StatusBadRequest)
		return
	}

	resp := h.orch.ProcessMessage(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) validSignature(header string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, prefix)))
}
