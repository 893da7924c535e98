package booking

import (
	"context"
	"time"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/catalog"
	"github.com/medconnect/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/pkg/logging"
)

// Backend is the slice of the clinic API the flow needs.
type Backend interface {
	SearchPatient(ctx context.Context, phone string) (*backend.Patient, error)
	CreatePatient(ctx context.Context, req backend.CreatePatientRequest) (*backend.Patient, error)
	ListServiceTypes(ctx context.Context) ([]backend.ServiceType, error)
	ListServicesByType(ctx context.Context, serviceTypeID int64) ([]backend.Service, error)
	GetService(ctx context.Context, id int64) (*backend.Service, error)
	ListServiceDoctors(ctx context.Context, serviceID int64) ([]backend.Resource, error)
	ListDoctors(ctx context.Context) ([]backend.Resource, error)
	ListSpecialists(ctx context.Context) ([]backend.Resource, error)
	ListDevices(ctx context.Context) ([]backend.Resource, error)
	ListSlots(ctx context.Context, q backend.SlotQuery) ([]backend.Slot, error)
	CreateAppointment(ctx context.Context, req backend.CreateAppointmentRequest, idempotencyKey string) (*backend.Appointment, error)
}

// Deps bundles everything handlers touch. Engine owns construction, handlers
// only read.
type Deps struct {
	Backend  Backend
	Renderer render.Renderer
	Logger   *logging.Logger
	Metrics  *metrics.BookingMetrics

	ServiceTypes *catalog.Cache[[]backend.ServiceType]
	Services     *catalog.Cache[[]backend.Service]

	CatalogTTL  time.Duration
	MaxSlots    int
	CountryCode string
	DefaultCity string
	ClinicPhone string

	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Deps) say(ctx context.Context, s *State, p render.Prompt) {
	text, err := d.Renderer.Render(ctx, p)
	if err != nil || text == "" {
		d.Logger.Warn("render failed, using fallback", "kind", string(p.Kind), "error", err)
		text = "عذراً، حصل خطأ مؤقت. حاول مرة ثانية من فضلك."
	}
	s.Say(text)
}
