// Package intent defines the coarse intent vocabulary produced by the
// upstream message classifier and a keyword fallback for degraded operation.
package intent

import (
	"context"
	"strings"
)

// Intent is a coarse label for what the user wants from a message.
type Intent string

const (
	Booking      Intent = "booking"
	Confirmation Intent = "confirmation"
	Negation     Intent = "negation"
	Cancel       Intent = "cancel"
	Registration Intent = "registration"
	Question     Intent = "question"
	Unknown      Intent = "unknown"
)

// Classifier maps a message to an intent label and confidence. The
// production classifier lives outside this service; implementations here
// only need to agree on the vocabulary.
type Classifier interface {
	Classify(ctx context.Context, message string) (Intent, float64, error)
}

// StaticClassifier is a keyword-based fallback classifier. It covers the
// short Arabic/English replies the flow depends on (yes/no/cancel/booking)
// and returns Unknown for everything else.
type StaticClassifier struct{}

var (
	confirmationWords = []string{"نعم", "يلا", "تمام", "اوك", "ماشي", "زين", "طيب", "تأكيد", "أكد", "بينا", "ok", "yes", "sure", "confirm"}
	negationWords     = []string{"لا", "مو", "ما ابي", "ما أبي", "no", "nope", "not"}
	cancelWords       = []string{"إلغاء", "الغاء", "الغي", "ألغي", "رجوع", "cancel", "stop", "back"}
	bookingWords      = []string{"حجز", "احجز", "أحجز", "موعد", "book", "booking", "appointment"}
	registrationWords = []string{"تسجيل", "سجل", "سجلني", "register", "registration", "sign up"}
)

func (StaticClassifier) Classify(_ context.Context, message string) (Intent, float64, error) {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return Unknown, 0, nil
	}
	switch {
	case matchAny(msg, cancelWords):
		return Cancel, 0.9, nil
	case matchAny(msg, negationWords):
		return Negation, 0.8, nil
	case matchAny(msg, confirmationWords):
		return Confirmation, 0.8, nil
	case matchAny(msg, registrationWords):
		return Registration, 0.7, nil
	case matchAny(msg, bookingWords):
		return Booking, 0.7, nil
	}
	return Unknown, 0, nil
}

func matchAny(msg string, words []string) bool {
	for _, w := range words {
		if msg == w {
			return true
		}
		// Multi-word keywords match as substrings, single words only as
		// whole tokens so "نعم" inside a longer word does not trigger.
		if strings.Contains(w, " ") && strings.Contains(msg, w) {
			return true
		}
		for _, tok := range strings.Fields(msg) {
			if tok == w {
				return true
			}
		}
	}
	return false
}
