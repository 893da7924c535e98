package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/internal/textutil"
)

var cancelKeywords = []string{"إلغاء", "cancel", "stop", "back", "رجوع"}

func isCancelKeyword(msg string) bool {
	norm := strings.ToLower(strings.TrimSpace(msg))
	for _, kw := range cancelKeywords {
		if norm == kw {
			return true
		}
	}
	return false
}

// needsRegistration asks an unknown caller for consent to register.
func (e *Engine) needsRegistration(ctx context.Context, s *State) error {
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindAskRegistration, Lang: "ar"})
	s.Step = StepAwaitingRegistrationConfirmation
	return nil
}

// startRegistration opens the registration dialogue by asking for a name.
func (e *Engine) startRegistration(ctx context.Context, s *State) error {
	s.ClearRegistration()
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindAskName, Lang: "ar"})
	s.Step = StepAwaitingName
	return nil
}

// processName validates the submitted name. A message carrying a name on the
// first line and a national ID on the second completes registration in one go.
func (e *Engine) processName(ctx context.Context, s *State) error {
	msg := strings.TrimSpace(s.CurrentMessage)
	if isCancelKeyword(msg) {
		return e.cancelRegistration(ctx, s)
	}

	if lines := nonEmptyLines(msg); len(lines) >= 2 {
		name, id := strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
		if reason := nameProblem(name); reason != "" {
			e.deps.say(ctx, s, render.Prompt{Kind: render.KindInvalidName, Lang: "ar", Reason: reason})
			return nil
		}
		if !textutil.ValidNationalID(id) {
			e.deps.say(ctx, s, render.Prompt{Kind: render.KindInvalidNationalID, Lang: "ar", Reason: idProblem(id)})
			s.Name = name
			s.ArabicName = name
			s.Step = StepRegistrationID
			return nil
		}
		s.Name, s.ArabicName, s.NationalID = name, name, id
		s.Step = StepRegistrationCompleteMultiline
		return nil
	}

	// A bare national ID after the name was already captured skips ahead.
	if s.Name != "" && textutil.ValidNationalID(msg) {
		s.NationalID = msg
		s.Step = StepRegistrationComplete
		return nil
	}

	if reason := nameProblem(msg); reason != "" {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindInvalidName, Lang: "ar", Reason: reason})
		return nil
	}

	s.Name = msg
	s.ArabicName = msg
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindAskNationalID, Lang: "ar", Name: s.Name})
	s.Step = StepRegistrationID
	return nil
}

// processNationalID validates the submitted identification number.
func (e *Engine) processNationalID(ctx context.Context, s *State) error {
	msg := strings.TrimSpace(s.CurrentMessage)
	if isCancelKeyword(msg) {
		return e.cancelRegistration(ctx, s)
	}

	id := strings.Join(strings.Fields(msg), "")
	if !textutil.ValidNationalID(id) {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindInvalidNationalID, Lang: "ar", Reason: idProblem(id)})
		return nil
	}

	s.NationalID = id
	s.Step = StepRegistrationComplete
	return nil
}

// completeRegistration creates the patient record at the clinic backend.
// Gender is never asked over chat, the record defaults to male and the
// clinic corrects it at the front desk.
func (e *Engine) completeRegistration(ctx context.Context, s *State) error {
	if s.Gender == "" {
		s.Gender = "male"
	}

	req := backend.CreatePatientRequest{
		Name:             s.Name,
		IdentificationID: s.NationalID,
		Gender:           s.Gender,
		PatientPhone:     textutil.NormalizePhone(s.PhoneNumber, e.deps.CountryCode),
		BirthDate:        birthDateFromNationalID(s.NationalID),
		City:             e.deps.DefaultCity,
		CountryCode:      "SA",
		RegistrationType: "agent",
		ReferenceBy:      "whatsapp",
	}

	patient, err := e.deps.Backend.CreatePatient(ctx, req)
	if err != nil {
		// Some backend versions reject the agent attribution fields. Retry
		// once without them before surfacing the failure.
		if apiErr, ok := backend.AsAPIError(err); ok && mentionsAttribution(apiErr) {
			retry := req
			retry.RegistrationType = ""
			retry.ReferenceBy = ""
			patient, err = e.deps.Backend.CreatePatient(ctx, retry)
		}
		if err != nil {
			return fmt.Errorf("booking: create patient: %w", err)
		}
	}

	s.PatientID = patient.ID
	s.PatientVerified = true
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindRegistrationDone, Lang: "ar", Name: s.ArabicName})
	s.Step = StepFetchServiceTypes
	return nil
}

func (e *Engine) cancelRegistration(ctx context.Context, s *State) error {
	s.ClearRegistration()
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindCancelled, Lang: "ar"})
	s.Step = StepRegistrationCancelled
	return nil
}

// nameProblem returns a localized reason when the name is unusable, empty
// string when it passes.
func nameProblem(name string) string {
	if len([]rune(name)) < 2 || len([]rune(name)) > 100 {
		return "الاسم قصير جداً أو طويل جداً."
	}
	if len(strings.Fields(name)) < 2 {
		return "نحتاج الاسم الكامل (اسمين على الأقل)."
	}
	if !textutil.MostlyArabic(name) {
		return "الاسم لازم يكون بالأحرف العربية."
	}
	return ""
}

func idProblem(id string) string {
	digits := 0
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits != 10 {
		return fmt.Sprintf("الرقم المرسل يحتوي %d أرقام.", digits)
	}
	return "الرقم لازم يبدأ بـ 1 أو 2."
}

// birthDateFromNationalID derives an approximate birth date from the ID
// issue generation. The clinic backend requires a non-empty date.
func birthDateFromNationalID(id string) string {
	if len(id) == 10 {
		switch id[0] {
		case '1':
			return "1985-01-01"
		case '2':
			return "1995-01-01"
		}
	}
	return "1990-01-01"
}

func mentionsAttribution(err *backend.APIError) bool {
	fields := err.Fields()
	return strings.Contains(fields, "reference_by") || strings.Contains(fields, "whatsapp_bot")
}

func nonEmptyLines(msg string) []string {
	var out []string
	for _, line := range strings.Split(msg, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
