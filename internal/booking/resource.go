package booking

import (
	"context"
	"fmt"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
)

// fetchResources presents whatever the chosen service books against. A
// service with no staffing requirement goes straight to the slot listing.
func (e *Engine) fetchResources(ctx context.Context, s *State) error {
	// A restored session carries the pinned service but not its staffing
	// flags. Reload them before dispatching.
	if s.ResourceKind == ResourceNone && s.ServiceID != 0 {
		svc, err := e.deps.Backend.GetService(ctx, s.ServiceID)
		if err != nil {
			return fmt.Errorf("booking: load service %d: %w", s.ServiceID, err)
		}
		s.ServiceName = svc.DisplayName()
		s.ServicePrice = svc.Price
		s.ResourceKind = serviceRequirement(svc)
	}

	// Picks left over from a differently staffed service never leak into
	// this one.
	if s.ResourceKind != ResourceDoctor {
		s.DoctorID, s.DoctorName = 0, ""
	}
	if s.ResourceKind != ResourceSpecialist {
		s.SpecialistID, s.SpecialistName = 0, ""
	}
	if s.ResourceKind != ResourceDevice {
		s.DeviceID, s.DeviceName = 0, ""
	}

	switch s.ResourceKind {
	case ResourceDoctor:
		return e.fetchDoctors(ctx, s)
	case ResourceSpecialist:
		return e.fetchSpecialists(ctx, s)
	case ResourceDevice:
		return e.fetchDevices(ctx, s)
	case ResourceNone:
		s.Step = StepFetchTimeSlots
		return nil
	}
	s.Step = StepUnknownRequirement
	s.LastError = fmt.Sprintf("unknown resource kind %q for service %d", s.ResourceKind, s.ServiceID)
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceUnavailable, Lang: "ar"})
	return nil
}

// fetchDoctors prefers doctors assigned to the service and falls back to
// the full roster when the assignment list is empty.
func (e *Engine) fetchDoctors(ctx context.Context, s *State) error {
	doctors, err := e.deps.Backend.ListServiceDoctors(ctx, s.ServiceID)
	if err != nil || len(doctors) == 0 {
		if err != nil {
			e.deps.Logger.Warn("service doctor list failed, falling back to full roster",
				"service_id", s.ServiceID, "error", err)
		}
		doctors, err = e.deps.Backend.ListDoctors(ctx)
		if err != nil {
			return fmt.Errorf("booking: list doctors: %w", err)
		}
	}
	return e.presentResources(ctx, s, doctors, render.KindDoctorList, StepAwaitingDoctor)
}

func (e *Engine) fetchSpecialists(ctx context.Context, s *State) error {
	specialists, err := e.deps.Backend.ListSpecialists(ctx)
	if err != nil {
		return fmt.Errorf("booking: list specialists: %w", err)
	}
	return e.presentResources(ctx, s, specialists, render.KindSpecialistList, StepAwaitingSpecialist)
}

// fetchDevices narrows the device roster to units whose name appears in the
// service name. A single match books itself without another round trip.
func (e *Engine) fetchDevices(ctx context.Context, s *State) error {
	devices, err := e.deps.Backend.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("booking: list devices: %w", err)
	}

	matched := make([]backend.Resource, 0, len(devices))
	for _, d := range devices {
		if d.Name != "" && containsFold(s.ServiceName, d.Name) {
			matched = append(matched, d)
			continue
		}
		if d.NameAr != "" && containsFold(s.ServiceName, d.NameAr) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		matched = devices
	}

	if len(matched) == 1 {
		s.DeviceID = matched[0].ID
		s.DeviceName = matched[0].DisplayName()
		s.Step = StepDeviceSelected
		return nil
	}
	return e.presentResources(ctx, s, matched, render.KindDeviceList, StepAwaitingDevice)
}

func (e *Engine) presentResources(ctx context.Context, s *State, resources []backend.Resource, kind render.Kind, next Step) error {
	if len(resources) == 0 {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceUnavailable, Lang: "ar"})
		s.Step = StepServiceNotFound
		return nil
	}

	s.ResourceOptions = s.ResourceOptions[:0]
	labels := make([]string, 0, len(resources))
	for _, r := range resources {
		s.ResourceOptions = append(s.ResourceOptions, Option{ID: r.ID, Label: r.DisplayName()})
		labels = append(labels, r.DisplayName())
	}
	e.deps.say(ctx, s, render.Prompt{Kind: kind, Lang: "ar", Items: labels})
	s.Step = next
	return nil
}

// selectResource resolves the patient's pick and stamps it on the matching
// resource field only. The other two stay zero so the booking payload never
// mixes a doctor id into a device flow.
func (e *Engine) selectResource(ctx context.Context, s *State, kind ResourceKind) error {
	opt, ok := resolveOption(s.CurrentMessage, s.ResourceOptions)
	if !ok {
		if len(s.ResourceOptions) == 0 {
			s.Step = resourceFailureStep(kind)
			s.LastError = "resource menu missing from state"
			return nil
		}
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindSelectionNotFound, Lang: "ar"})
		return nil
	}

	switch kind {
	case ResourceDoctor:
		s.DoctorID, s.DoctorName = opt.ID, opt.Label
		s.Step = StepDoctorSelected
	case ResourceSpecialist:
		s.SpecialistID, s.SpecialistName = opt.ID, opt.Label
		s.Step = StepSpecialistSelected
	case ResourceDevice:
		s.DeviceID, s.DeviceName = opt.ID, opt.Label
		s.Step = StepDeviceSelected
	default:
		s.Step = StepUnknownRequirement
	}
	return nil
}

func resourceFailureStep(kind ResourceKind) Step {
	switch kind {
	case ResourceDoctor:
		return StepDoctorSelectionFailed
	case ResourceSpecialist:
		return StepSpecialistSelectionFailed
	case ResourceDevice:
		return StepDeviceSelectionFailed
	}
	return StepUnknownRequirement
}
