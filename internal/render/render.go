// Package render turns structured flow events into user-facing WhatsApp
// text. The production deployment swaps in an LLM-backed Renderer; the
// TemplateRenderer here is the deterministic default used in tests and
// degraded operation.
package render

import "context"

// Kind names the message being rendered.
type Kind string

const (
	KindAskService         Kind = "ask_service"
	KindAskRegistration    Kind = "ask_registration_consent"
	KindWelcomeBack        Kind = "welcome_back"
	KindAskName            Kind = "ask_name"
	KindAskNationalID      Kind = "ask_national_id"
	KindInvalidName        Kind = "invalid_name"
	KindInvalidNationalID  Kind = "invalid_national_id"
	KindRegistrationDone   Kind = "registration_done"
	KindRegistrationError  Kind = "registration_error"
	KindServiceTypeList    Kind = "service_type_list"
	KindServiceList        Kind = "service_list"
	KindDoctorList         Kind = "doctor_list"
	KindSpecialistList     Kind = "specialist_list"
	KindDeviceList         Kind = "device_list"
	KindSlotList           Kind = "slot_list"
	KindNoSlots            Kind = "no_slots"
	KindBookingSummary     Kind = "booking_summary"
	KindBookingSuccess     Kind = "booking_success"
	KindCancelled          Kind = "cancelled"
	KindLoopHelp           Kind = "loop_help"
	KindErrorRecovery      Kind = "error_recovery"
	KindCatastrophicError  Kind = "catastrophic_error"
	KindBusy               Kind = "busy"
	KindFallback           Kind = "fallback"
	KindSelectionNotFound  Kind = "selection_not_found"
	KindValidationFailed   Kind = "validation_failed"
	KindServiceUnavailable Kind = "service_unavailable"
)

// Prompt carries everything a Renderer needs to produce one message.
type Prompt struct {
	Kind    Kind
	Lang    string // "ar" or "en"
	Name    string // addressee display name
	Reason  string // validation failure detail, already localized
	Items   []string
	Details map[string]string
}

// Renderer produces the outbound message text for a prompt.
type Renderer interface {
	Render(ctx context.Context, p Prompt) (string, error)
}
