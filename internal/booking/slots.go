package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
)

// fetchTimeSlots lists availability for the chosen service and resource,
// starting from today.
func (e *Engine) fetchTimeSlots(ctx context.Context, s *State) error {
	q := backend.SlotQuery{
		ServiceID: s.ServiceID,
		Date:      e.deps.now().Format("2006-01-02"),
	}
	switch s.ResourceKind {
	case ResourceDoctor:
		q.DoctorID = s.DoctorID
	case ResourceSpecialist:
		q.SpecialistID = s.SpecialistID
	case ResourceDevice:
		q.DeviceID = s.DeviceID
	}

	slots, err := e.deps.Backend.ListSlots(ctx, q)
	if err != nil {
		return fmt.Errorf("booking: list slots: %w", err)
	}
	if len(slots) == 0 {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindNoSlots, Lang: "ar"})
		s.Step = StepNoSlotsAvailable
		return nil
	}

	limit := e.deps.MaxSlots
	if limit <= 0 {
		limit = 10
	}
	if len(slots) > limit {
		slots = slots[:limit]
	}

	s.SlotOptions = s.SlotOptions[:0]
	labels := make([]string, 0, len(slots))
	for _, sl := range slots {
		s.SlotOptions = append(s.SlotOptions, SlotOption{Date: sl.Date, Time: sl.Time})
		labels = append(labels, fmt.Sprintf("%s الساعة %s", sl.Date, sl.Time))
	}
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindSlotList, Lang: "ar", Items: labels})
	s.Step = StepAwaitingTimeSlot
	return nil
}

// selectTimeSlot resolves the patient's pick from the presented slot list.
func (e *Engine) selectTimeSlot(ctx context.Context, s *State) error {
	if len(s.SlotOptions) == 0 {
		s.Step = StepTimeSlotSelectionFailed
		s.LastError = "slot menu missing from state"
		return nil
	}

	idx, ok := resolveSlot(s.CurrentMessage, s.SlotOptions)
	if !ok {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindSelectionNotFound, Lang: "ar"})
		return nil
	}

	s.SlotDate = s.SlotOptions[idx].Date
	s.SlotTime = s.SlotOptions[idx].Time
	s.Step = StepTimeSlotSelected
	return nil
}

// confirmBooking shows the summary and waits for a yes or no.
func (e *Engine) confirmBooking(ctx context.Context, s *State) error {
	details := map[string]string{
		"service": s.ServiceName,
		"price":   s.ServicePrice,
		"date":    s.SlotDate,
		"time":    s.SlotTime,
	}
	if name := s.resourceName(); name != "" {
		details["resource"] = name
	}
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindBookingSummary, Lang: "ar", Details: details})
	s.Step = StepAwaitingConfirmation
	return nil
}

// createBooking validates everything locally before calling the backend so
// a half-built state never produces a malformed appointment.
func (e *Engine) createBooking(ctx context.Context, s *State) error {
	if reason := s.bookingProblem(); reason != "" {
		s.Step = StepValidationFailed
		s.LastError = reason
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindValidationFailed, Lang: "ar"})
		return nil
	}

	req := backend.CreateAppointmentRequest{
		PatientPhone:    s.PhoneNumber,
		ServiceID:       s.ServiceID,
		AppointmentDate: s.SlotDate,
		AppointmentTime: s.SlotTime,
	}
	switch s.ResourceKind {
	case ResourceDoctor:
		req.DoctorID = s.DoctorID
	case ResourceSpecialist:
		req.SpecialistID = s.SpecialistID
	case ResourceDevice:
		req.DeviceID = s.DeviceID
	}

	key := appointmentKey(s)
	appt, err := e.deps.Backend.CreateAppointment(ctx, req, key)
	if err != nil {
		return fmt.Errorf("booking: create appointment: %w", err)
	}

	s.BookingID = appt.ID
	s.LastBookingID = appt.ID
	s.ConfirmationCode = appt.ConfirmationCode
	s.Step = StepBookingCreated
	return nil
}

// sendConfirmation delivers the success message and shrinks the state down
// to what a future conversation needs.
func (e *Engine) sendConfirmation(ctx context.Context, s *State) error {
	e.deps.say(ctx, s, render.Prompt{
		Kind: render.KindBookingSuccess,
		Lang: "ar",
		Details: map[string]string{
			"confirmation_code": s.ConfirmationCode,
			"date":              s.SlotDate,
			"time":              s.SlotTime,
		},
	})
	s.Step = StepCompleted
	s.ShrinkOnCompletion()
	return nil
}

// bookingProblem reports why the state cannot book yet, empty when ready.
func (s *State) bookingProblem() string {
	switch {
	case s.PatientID == 0:
		return "patient not verified"
	case s.ServiceID == 0:
		return "no service selected"
	case s.SlotDate == "" || s.SlotTime == "":
		return "no time slot selected"
	}
	switch s.ResourceKind {
	case ResourceDoctor:
		if s.DoctorID == 0 {
			return "no doctor selected"
		}
	case ResourceSpecialist:
		if s.SpecialistID == 0 {
			return "no specialist selected"
		}
	case ResourceDevice:
		if s.DeviceID == 0 {
			return "no device selected"
		}
	}
	return ""
}

func (s *State) resourceName() string {
	switch s.ResourceKind {
	case ResourceDoctor:
		return s.DoctorName
	case ResourceSpecialist:
		return s.SpecialistName
	case ResourceDevice:
		return s.DeviceName
	}
	return ""
}

// appointmentKey derives a stable idempotency key for the exact slot this
// session is booking. Retries of the same confirmation reuse it.
func appointmentKey(s *State) string {
	seed := fmt.Sprintf("%s|%d|%s|%s", s.SessionID, s.ServiceID, s.SlotDate, s.SlotTime)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

func resolveSlot(msg string, opts []SlotOption) (int, bool) {
	labels := make([]Option, len(opts))
	for i, o := range opts {
		labels[i] = Option{ID: int64(i + 1), Label: o.Date + " " + o.Time}
	}
	opt, ok := resolveOption(msg, labels)
	if !ok {
		return 0, false
	}
	return int(opt.ID) - 1, true
}
