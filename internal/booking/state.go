// Package booking implements the conversational appointment flow. A State
// carries everything known about one patient conversation and each Step
// names where in the flow the conversation sits between messages.
package booking

import (
	"strings"
	"time"
)

// Step identifies the flow position. Steps that start with "awaiting" pause
// the conversation until the next inbound message.
type Step string

const (
	StepStart Step = "start"

	StepVerifyPatient                    Step = "verify_patient"
	StepNeedsRegistration                Step = "needs_registration"
	StepAwaitingRegistrationConfirmation Step = "awaiting_registration_confirmation"
	StepStartRegistration                Step = "start_registration"
	StepAwaitingName                     Step = "awaiting_name"
	StepRegistrationID                   Step = "registration_id"
	StepRegistrationComplete             Step = "registration_complete"
	StepRegistrationCompleteMultiline    Step = "registration_complete_multiline"
	StepRegistrationCancelled            Step = "registration_cancelled"

	StepFetchServiceTypes        Step = "fetch_service_types"
	StepAwaitingServiceType      Step = "awaiting_service_type"
	StepServiceTypeSelected      Step = "service_type_selected"
	StepFetchServices            Step = "fetch_services"
	StepAwaitingService          Step = "awaiting_service"
	StepAwaitingServiceSelection Step = "awaiting_service_selection"
	StepServiceSelected          Step = "service_selected"

	StepFetchResources     Step = "fetch_resources"
	StepAwaitingDoctor     Step = "awaiting_doctor"
	StepAwaitingSpecialist Step = "awaiting_specialist"
	StepAwaitingDevice     Step = "awaiting_device"
	StepDoctorSelected     Step = "doctor_selected"
	StepSpecialistSelected Step = "specialist_selected"
	StepDeviceSelected     Step = "device_selected"
	StepUnknownRequirement Step = "unknown_requirement"

	StepFetchTimeSlots   Step = "fetch_time_slots"
	StepAwaitingTimeSlot Step = "awaiting_time_slot"
	StepTimeSlotSelected Step = "time_slot_selected"
	StepNoSlotsAvailable Step = "no_slots_available"

	StepConfirmBooking       Step = "confirm_booking"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	StepCreateBooking        Step = "create_booking"
	StepBookingCreated       Step = "booking_created"
	StepSendConfirmation     Step = "send_confirmation"
	StepCompleted            Step = "completed"
	StepCancelled            Step = "cancelled"

	StepValidationFailed           Step = "validation_failed"
	StepServiceTypeSelectionFailed Step = "service_type_selection_failed"
	StepServiceSelectionFailed     Step = "service_selection_failed"
	StepDoctorSelectionFailed      Step = "doctor_selection_failed"
	StepSpecialistSelectionFailed  Step = "specialist_selection_failed"
	StepDeviceSelectionFailed      Step = "device_selection_failed"
	StepTimeSlotSelectionFailed    Step = "time_slot_selection_failed"
	StepServiceNotFound            Step = "service_not_found"

	StepPatientVerificationError Step = "patient_verification_error"
	StepErrorNoServiceType       Step = "error_no_service_type"
	StepErrorRecovery            Step = "error_recovery"
	StepLoopDetected             Step = "loop_detected"
	StepLoopHelp                 Step = "loop_help"
	StepCatastrophicFailure      Step = "catastrophic_failure"
)

// IsWaiting reports whether the flow should stop and wait for the patient
// to reply.
func (s Step) IsWaiting() bool {
	return strings.HasPrefix(string(s), "awaiting_")
}

// IsTerminal reports whether the conversation is finished for this turn
// and the next message starts fresh routing.
func (s Step) IsTerminal() bool {
	switch s {
	case StepCompleted, StepCancelled, StepRegistrationCancelled, StepCatastrophicFailure:
		return true
	}
	return false
}

// IsError reports whether the step records a failure needing the error
// handler. Validation failures are excluded: they re-prompt in place with
// the collected selections intact instead of resetting the conversation.
func (s Step) IsError() bool {
	if s == StepValidationFailed {
		return false
	}
	str := string(s)
	return strings.HasPrefix(str, "error_") || strings.HasSuffix(str, "_error") ||
		strings.HasSuffix(str, "_failed") || s == StepCatastrophicFailure ||
		s == StepLoopDetected || s == StepServiceNotFound
}

// InConfirmation reports whether the step is part of the final confirmation
// exchange. Duplicate suppression is bypassed here so a repeated "نعم" still
// lands.
func (s Step) InConfirmation() bool {
	return strings.Contains(string(s), "confirmation")
}

// ResourceKind distinguishes which staff or equipment a service books against.
type ResourceKind string

const (
	ResourceDoctor     ResourceKind = "doctor"
	ResourceSpecialist ResourceKind = "specialist"
	ResourceDevice     ResourceKind = "device"
	ResourceNone       ResourceKind = ""
)

// Message is one transcript entry within a conversation state.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// State is the persisted conversation snapshot. It round-trips through the
// session store between messages, so exported fields only.
type State struct {
	SessionID   string    `json:"session_id"`
	PhoneNumber string    `json:"phone_number"`
	SenderName  string    `json:"sender_name,omitempty"`
	ArabicName  string    `json:"arabic_name,omitempty"`
	Step        Step      `json:"step"`
	Started     time.Time `json:"started"`

	Messages []Message `json:"messages,omitempty"`

	// Patient identity.
	PatientID       int64  `json:"patient_id,omitempty"`
	PatientVerified bool   `json:"patient_verified,omitempty"`
	Name            string `json:"name,omitempty"`
	NationalID      string `json:"national_id,omitempty"`
	Gender          string `json:"gender,omitempty"`

	// Catalog progress.
	ServiceTypeID   int64        `json:"service_type_id,omitempty"`
	ServiceTypeName string       `json:"service_type_name,omitempty"`
	ServiceID       int64        `json:"service_id,omitempty"`
	ServiceName     string       `json:"service_name,omitempty"`
	ServicePrice    string       `json:"service_price,omitempty"`
	ResourceKind    ResourceKind `json:"resource_kind,omitempty"`
	DoctorID        int64        `json:"doctor_id,omitempty"`
	DoctorName      string       `json:"doctor_name,omitempty"`
	SpecialistID    int64        `json:"specialist_id,omitempty"`
	SpecialistName  string       `json:"specialist_name,omitempty"`
	DeviceID        int64        `json:"device_id,omitempty"`
	DeviceName      string       `json:"device_name,omitempty"`

	// Presented menus, kept so a numeric reply can be resolved next turn.
	ServiceTypeOptions []Option     `json:"service_type_options,omitempty"`
	ServiceOptions     []Option     `json:"service_options,omitempty"`
	ResourceOptions    []Option     `json:"resource_options,omitempty"`
	SlotOptions        []SlotOption `json:"slot_options,omitempty"`

	// Chosen slot.
	SlotDate string `json:"slot_date,omitempty"`
	SlotTime string `json:"slot_time,omitempty"`

	// Result.
	BookingID        int64  `json:"booking_id,omitempty"`
	LastBookingID    int64  `json:"last_booking_id,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`

	// Failure accounting.
	LastError        string `json:"last_error,omitempty"`
	CriticalFailures int    `json:"critical_failures,omitempty"`
	RepeatCount      int    `json:"repeat_count,omitempty"`
	LastUserMessage  string `json:"last_user_message,omitempty"`
	LastMessageStep  Step   `json:"last_message_step,omitempty"`

	// Per-turn scratch, never persisted.
	CurrentMessage string   `json:"-"`
	PreviousStep   Step     `json:"-"`
	Resuming       bool     `json:"-"`
	Reply          []string `json:"-"`
}

// Option is a presented menu entry.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// SlotOption is a presented time slot.
type SlotOption struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// NewState starts a fresh conversation for a phone number.
func NewState(sessionID, phone, senderName string, now time.Time) *State {
	return &State{
		SessionID:   sessionID,
		PhoneNumber: phone,
		SenderName:  senderName,
		Step:        StepStart,
		Started:     now,
	}
}

// Say appends an outbound line for this turn and records it in the transcript.
func (s *State) Say(text string) {
	s.Reply = append(s.Reply, text)
	s.Messages = append(s.Messages, Message{Role: "assistant", Content: text, At: time.Now().UTC()})
}

// RecordUser appends the inbound message to the transcript.
func (s *State) RecordUser(text string) {
	s.Messages = append(s.Messages, Message{Role: "user", Content: text, At: time.Now().UTC()})
}

// Reset clears flow progress but keeps identity, so a recovered conversation
// restarts from the greeting without re-verifying from scratch.
func (s *State) Reset() {
	s.Step = StepStart
	s.LastError = ""
	s.RepeatCount = 0
	s.ServiceTypeID = 0
	s.ServiceTypeName = ""
	s.ServiceID = 0
	s.ServiceName = ""
	s.ServicePrice = ""
	s.ResourceKind = ResourceNone
	s.DoctorID, s.DoctorName = 0, ""
	s.SpecialistID, s.SpecialistName = 0, ""
	s.DeviceID, s.DeviceName = 0, ""
	s.ServiceTypeOptions = nil
	s.ServiceOptions = nil
	s.ResourceOptions = nil
	s.SlotOptions = nil
	s.SlotDate, s.SlotTime = "", ""
}

// ClearRegistration drops partially collected registration input.
func (s *State) ClearRegistration() {
	s.Name = ""
	s.NationalID = ""
	s.Gender = ""
}

// ShrinkOnCompletion drops everything not worth carrying past a finished
// booking. What survives lets a returning patient be greeted by name and
// lets support look up the booking.
func (s *State) ShrinkOnCompletion() {
	*s = State{
		SessionID:     s.SessionID,
		PhoneNumber:   s.PhoneNumber,
		SenderName:    s.SenderName,
		ArabicName:    s.ArabicName,
		Messages:      s.Messages,
		Step:          s.Step,
		Started:       s.Started,
		LastBookingID: s.LastBookingID,
		BookingID:     s.BookingID,
	}
}
