package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/internal/textutil"
)

// verifyPatient looks the phone number up in the clinic records. Known
// patients are greeted by name and moved straight to service selection,
// unknown ones are offered registration.
func (e *Engine) verifyPatient(ctx context.Context, s *State) error {
	// WhatsApp normally supplies the sender number, but a restored session
	// can arrive without one. Try the message text before giving up.
	if s.PhoneNumber == "" {
		recovered := textutil.ExtractSaudiPhone(s.CurrentMessage)
		if recovered == "" {
			s.PatientVerified = false
			s.Step = StepPatientVerificationError
			s.LastError = "phone number missing from state"
			e.deps.say(ctx, s, render.Prompt{Kind: render.KindErrorRecovery, Lang: "ar"})
			return nil
		}
		s.PhoneNumber = recovered
	}

	patient, err := e.deps.Backend.SearchPatient(ctx, s.PhoneNumber)
	if errors.Is(err, backend.ErrNotFound) {
		s.PatientVerified = false
		s.Step = StepNeedsRegistration
		return nil
	}
	if err != nil {
		return fmt.Errorf("booking: patient lookup: %w", err)
	}

	s.PatientID = patient.ID
	s.Name = patient.Name
	s.NationalID = patient.NationalID
	if patient.Gender != "" {
		s.Gender = patient.Gender
	} else if s.Gender == "" {
		s.Gender = "male"
	}
	s.PatientVerified = true
	if s.ArabicName == "" {
		s.ArabicName = patient.Name
	}

	// A service pinned before the session was restored resumes straight at
	// resource selection instead of walking the menus again.
	if s.ServiceID != 0 {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindWelcomeBack, Lang: "ar", Name: s.ArabicName})
		s.Step = StepFetchResources
		return nil
	}

	kind := render.KindAskService
	if s.LastBookingID != 0 {
		kind = render.KindWelcomeBack
	}
	e.deps.say(ctx, s, render.Prompt{Kind: kind, Lang: "ar", Name: s.ArabicName})
	s.Step = StepAwaitingServiceSelection
	return nil
}
