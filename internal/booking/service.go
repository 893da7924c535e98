package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/medconnect/whatsapp-booking-agent/internal/backend"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/internal/textutil"
)

// fetchServiceTypes lists the service categories. The catalog is cached, a
// cold cache hits the backend once per TTL window for all conversations.
func (e *Engine) fetchServiceTypes(ctx context.Context, s *State) error {
	types, err := e.deps.ServiceTypes.GetOrFetch(ctx, "service_types", e.deps.CatalogTTL, func(ctx context.Context) ([]backend.ServiceType, error) {
		return e.deps.Backend.ListServiceTypes(ctx)
	})
	if err != nil {
		return fmt.Errorf("booking: list service types: %w", err)
	}
	if len(types) == 0 {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceUnavailable, Lang: "ar"})
		s.Step = StepErrorNoServiceType
		return nil
	}

	s.ServiceTypeOptions = s.ServiceTypeOptions[:0]
	labels := make([]string, 0, len(types))
	for _, t := range types {
		s.ServiceTypeOptions = append(s.ServiceTypeOptions, Option{ID: t.ID, Label: t.DisplayName()})
		labels = append(labels, t.DisplayName())
	}
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceTypeList, Lang: "ar", Items: labels})
	s.Step = StepAwaitingServiceType
	return nil
}

// selectServiceType resolves the patient's reply against the presented
// category menu.
func (e *Engine) selectServiceType(ctx context.Context, s *State) error {
	opt, ok := resolveOption(s.CurrentMessage, s.ServiceTypeOptions)
	if !ok {
		if len(s.ServiceTypeOptions) == 0 {
			s.Step = StepServiceTypeSelectionFailed
			s.LastError = "service type menu missing from state"
			return nil
		}
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindSelectionNotFound, Lang: "ar"})
		return nil
	}

	s.ServiceTypeID = opt.ID
	s.ServiceTypeName = opt.Label
	s.Step = StepServiceTypeSelected
	return nil
}

// fetchServices lists bookable services within the chosen category.
func (e *Engine) fetchServices(ctx context.Context, s *State) error {
	if s.ServiceTypeID == 0 {
		s.Step = StepErrorNoServiceType
		s.LastError = "no service type selected"
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceUnavailable, Lang: "ar"})
		return nil
	}

	key := "services:" + strconv.FormatInt(s.ServiceTypeID, 10)
	services, err := e.deps.Services.GetOrFetch(ctx, key, e.deps.CatalogTTL, func(ctx context.Context) ([]backend.Service, error) {
		return e.deps.Backend.ListServicesByType(ctx, s.ServiceTypeID)
	})
	if err != nil {
		return fmt.Errorf("booking: list services: %w", err)
	}
	if len(services) == 0 {
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceUnavailable, Lang: "ar"})
		s.Step = StepServiceNotFound
		return nil
	}

	s.ServiceOptions = s.ServiceOptions[:0]
	labels := make([]string, 0, len(services))
	for _, svc := range services {
		label := svc.DisplayName()
		if svc.Price != "" {
			label = fmt.Sprintf("%s (%s)", label, svc.Price)
		}
		s.ServiceOptions = append(s.ServiceOptions, Option{ID: svc.ID, Label: svc.DisplayName()})
		labels = append(labels, label)
	}
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindServiceList, Lang: "ar", Items: labels})
	s.Step = StepAwaitingService
	return nil
}

// selectService resolves the service choice and records what the service
// needs booked alongside it.
func (e *Engine) selectService(ctx context.Context, s *State) error {
	opt, ok := resolveOption(s.CurrentMessage, s.ServiceOptions)
	if !ok {
		if len(s.ServiceOptions) == 0 {
			s.Step = StepServiceSelectionFailed
			s.LastError = "service menu missing from state"
			return nil
		}
		e.deps.say(ctx, s, render.Prompt{Kind: render.KindSelectionNotFound, Lang: "ar"})
		return nil
	}

	svc, err := e.deps.Backend.GetService(ctx, opt.ID)
	if err != nil {
		return fmt.Errorf("booking: load service %d: %w", opt.ID, err)
	}

	s.ServiceID = svc.ID
	s.ServiceName = svc.DisplayName()
	s.ServicePrice = svc.Price
	s.ResourceKind = serviceRequirement(svc)
	s.Step = StepServiceSelected
	return nil
}

// serviceRequirement maps the service flags to the resource the booking
// must name. Doctor wins when a service sets more than one flag.
func serviceRequirement(svc *backend.Service) ResourceKind {
	switch {
	case svc.RequiresDoctor:
		return ResourceDoctor
	case svc.RequiresSpecialist:
		return ResourceSpecialist
	case svc.RequiresDevice:
		return ResourceDevice
	}
	return ResourceNone
}

// resolveOption matches a free-text reply to a presented menu, by number
// first and then by substring against the labels.
func resolveOption(msg string, opts []Option) (Option, bool) {
	if len(opts) == 0 {
		return Option{}, false
	}
	if idx := textutil.SelectionIndex(msg); idx >= 1 && idx <= len(opts) {
		return opts[idx-1], true
	}
	norm := textutil.NormalizeMessage(msg)
	if norm == "" {
		return Option{}, false
	}
	for _, opt := range opts {
		if containsFold(opt.Label, norm) {
			return opt, true
		}
	}
	return Option{}, false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
