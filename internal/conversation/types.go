// Package conversation ties the webhook surface to the booking flow: it
// deduplicates deliveries, loads and saves session state, classifies the
// message, runs the flow engine, and records transcripts.
package conversation

import "time"

// Request is one inbound WhatsApp message after webhook parsing.
type Request struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number"`
	SenderName  string `json:"sender_name,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Response is what goes back to the WhatsApp channel.
type Response struct {
	Response  string `json:"response"`
	Intent    string `json:"intent,omitempty"`
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Step      string `json:"step,omitempty"`
}

// TranscriptMessage is one line persisted for support and audit.
type TranscriptMessage struct {
	ID        string
	Role      string
	Body      string
	From      string
	To        string
	Timestamp time.Time
}
