package backend

// ServiceType is a bookable service category ("laser", "filler", ...).
type ServiceType struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	NameAr string `json:"name_ar"`
}

// Service is a concrete bookable service under a service type. The
// requires_* flags decide which resource kind must be picked next.
type Service struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	NameAr             string `json:"name_ar"`
	Price              string `json:"price"`
	RequiresDoctor     bool   `json:"requires_doctor"`
	RequiresSpecialist bool   `json:"requires_specialist"`
	RequiresDevice     bool   `json:"requires_device"`
}

// DisplayName prefers the Arabic name and falls back to the English one.
func (s Service) DisplayName() string {
	if s.NameAr != "" {
		return s.NameAr
	}
	return s.Name
}

// DisplayName prefers the Arabic name and falls back to the English one.
func (t ServiceType) DisplayName() string {
	if t.NameAr != "" {
		return t.NameAr
	}
	return t.Name
}

// Resource is a doctor, specialist, or device that can deliver a service.
type Resource struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	NameAr string `json:"name_ar"`
}

// DisplayName prefers the Arabic name and falls back to the English one.
func (r Resource) DisplayName() string {
	if r.NameAr != "" {
		return r.NameAr
	}
	return r.Name
}

// Slot is an open appointment slot.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Patient is a registered clinic patient.
type Patient struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Gender     string `json:"gender"`
}

// CreatePatientRequest is the payload for registering a new patient.
// The backend validates every field and rejects unknown enum values, so
// the optional strings are sent empty rather than omitted.
type CreatePatientRequest struct {
	Name             string `json:"name"`
	IdentificationID string `json:"identification_id"`
	Gender           string `json:"gender"`
	PatientPhone     string `json:"patient_phone"`
	BirthDate        string `json:"birth_date"`
	City             string `json:"city"`
	CountryCode      string `json:"country_code"`
	Email            string `json:"email"`
	BloodType        string `json:"blood_type"`
	ChronicDiseases  string `json:"chronic_diseases"`
	Allergies        string `json:"allergies"`
	Notes            string `json:"notes"`
	RegistrationType string `json:"registration_type"`
	ReferenceBy      string `json:"reference_by"`
}

// SlotQuery selects open slots for a service and resource on a date.
type SlotQuery struct {
	ServiceID    int64
	Date         string
	DoctorID     int64
	SpecialistID int64
	DeviceID     int64
}

// CreateAppointmentRequest is the payload for booking an appointment.
type CreateAppointmentRequest struct {
	PatientPhone    string `json:"patient_phone"`
	ServiceID       int64  `json:"service_id"`
	DoctorID        int64  `json:"doctor_id,omitempty"`
	SpecialistID    int64  `json:"specialist_id,omitempty"`
	DeviceID        int64  `json:"device_id,omitempty"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes,omitempty"`
}

// Appointment is a confirmed booking.
type Appointment struct {
	ID               int64  `json:"id"`
	ConfirmationCode string `json:"confirmation_code"`
}
