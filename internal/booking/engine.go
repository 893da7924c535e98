package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
	"github.com/medconnect/whatsapp-booking-agent/internal/render"
	"github.com/medconnect/whatsapp-booking-agent/internal/textutil"
)

const (
	defaultMaxHops       = 50
	catastrophicFailures = 3
	loopRepeatThreshold  = 3
)

// confirmationKeywords are short acknowledgements that legitimately repeat.
// They never trip the repeated-message detector.
var confirmationKeywords = map[string]bool{
	"يلا": true, "تمام": true, "اوك": true, "ok": true, "yes": true,
	"نعم": true, "ماشي": true, "زين": true, "طيب": true, "لا": true, "no": true,
}

// Engine drives one conversation turn through the flow graph.
type Engine struct {
	deps    *Deps
	maxHops int
}

// NewEngine wires an engine over its dependencies.
func NewEngine(deps *Deps, maxHops int) *Engine {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	return &Engine{deps: deps, maxHops: maxHops}
}

// Run processes one inbound message against the state, mutating it in place.
// Replies for the turn accumulate in state.Reply. The returned error means
// the turn itself broke, not that the flow hit a recoverable failure step.
func (e *Engine) Run(ctx context.Context, s *State, message string, it intent.Intent) error {
	s.CurrentMessage = message
	s.PreviousStep = s.Step
	s.RecordUser(message)

	entry := e.entryNode(s, message, it)

	turnFailed := false
	cur := entry
	for hops := 0; cur != nodeEnd; hops++ {
		if hops >= e.maxHops {
			return fmt.Errorf("booking: step budget exhausted at %q (session %s)", cur, s.SessionID)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("booking: turn aborted: %w", err)
		}

		e.deps.Metrics.ObserveStep(string(cur))
		if err := e.execute(ctx, s, cur); err != nil {
			e.deps.Logger.Error("flow node failed",
				"node", string(cur), "session", s.SessionID, "error", err)
			turnFailed = true
			s.LastError = err.Error()
			s.CriticalFailures++
			s.Step = Step(string(cur) + "_error")
			if s.CriticalFailures >= catastrophicFailures {
				cur = nodeEnd
				e.catastrophic(ctx, s)
				break
			}
			cur = nodeHandleError
			continue
		}

		if turnEnders[cur] {
			break
		}
		cur = nextNode(s)
	}

	// A clean turn forgives earlier failures. The counter only accumulates
	// across consecutive broken turns so escalation stays rare.
	if !turnFailed && !s.Step.IsError() && s.Step != StepErrorRecovery {
		s.CriticalFailures = 0
		s.LastError = ""
	}
	return nil
}

// entryNode resolves loop detection and routing for the inbound message.
// A repeat only counts when the conversation is still parked at the same
// step: picking "1" off three successive menus is progress, not a loop.
func (e *Engine) entryNode(s *State, message string, it intent.Intent) node {
	norm := strings.ToLower(textutil.NormalizeMessage(message))
	if norm != "" && norm == s.LastUserMessage && s.Step == s.LastMessageStep &&
		!confirmationKeywords[norm] {
		s.RepeatCount++
	} else {
		s.RepeatCount = 1
	}
	s.LastUserMessage = norm
	s.LastMessageStep = s.Step

	if s.RepeatCount >= loopRepeatThreshold {
		s.Step = StepLoopDetected
		return nodeHandleLoop
	}
	return routeTurn(s, it)
}

func (e *Engine) execute(ctx context.Context, s *State, n node) error {
	switch n {
	case nodeVerifyPatient:
		return e.verifyPatient(ctx, s)
	case nodeNeedsRegistration:
		return e.needsRegistration(ctx, s)
	case nodeStartRegistration:
		return e.startRegistration(ctx, s)
	case nodeProcessName:
		return e.processName(ctx, s)
	case nodeProcessNationalID:
		return e.processNationalID(ctx, s)
	case nodeCompleteRegistration:
		return e.completeRegistration(ctx, s)
	case nodeFetchServiceTypes:
		return e.fetchServiceTypes(ctx, s)
	case nodeSelectServiceType:
		return e.selectServiceType(ctx, s)
	case nodeFetchServices:
		return e.fetchServices(ctx, s)
	case nodeSelectService:
		return e.selectService(ctx, s)
	case nodeFetchResources:
		return e.fetchResources(ctx, s)
	case nodeSelectDoctor:
		return e.selectResource(ctx, s, ResourceDoctor)
	case nodeSelectSpecialist:
		return e.selectResource(ctx, s, ResourceSpecialist)
	case nodeSelectDevice:
		return e.selectResource(ctx, s, ResourceDevice)
	case nodeFetchTimeSlots:
		return e.fetchTimeSlots(ctx, s)
	case nodeSelectTimeSlot:
		return e.selectTimeSlot(ctx, s)
	case nodeConfirmBooking:
		return e.confirmBooking(ctx, s)
	case nodeCreateBooking:
		return e.createBooking(ctx, s)
	case nodeSendConfirmation:
		return e.sendConfirmation(ctx, s)
	case nodeCancelBooking:
		return e.cancelBooking(ctx, s)
	case nodeHandleError:
		return e.handleError(ctx, s)
	case nodeHandleLoop:
		return e.handleLoop(ctx, s)
	}
	return fmt.Errorf("booking: unknown node %q", n)
}

// handleError recovers from a non-fatal failure. The flow restarts from the
// greeting with identity kept but partial registration input dropped.
func (e *Engine) handleError(ctx context.Context, s *State) error {
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindErrorRecovery, Lang: "ar"})
	s.Reset()
	s.ClearRegistration()
	s.Step = StepErrorRecovery
	return nil
}

// handleLoop answers a patient repeating the same message with usage help.
func (e *Engine) handleLoop(ctx context.Context, s *State) error {
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindLoopHelp, Lang: "ar"})
	s.RepeatCount = 0
	s.LastUserMessage = ""
	s.LastMessageStep = ""
	s.Step = StepLoopHelp
	return nil
}

// catastrophic ends the conversation with the escalation message after
// repeated failures.
func (e *Engine) catastrophic(ctx context.Context, s *State) {
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindCatastrophicError, Lang: "ar"})
	s.Step = StepCatastrophicFailure
	e.deps.Metrics.ObserveRecoveryTrip()
}

// cancelBooking ends the flow cleanly on patient request.
func (e *Engine) cancelBooking(ctx context.Context, s *State) error {
	e.deps.say(ctx, s, render.Prompt{Kind: render.KindCancelled, Lang: "ar"})
	if s.Step == StepAwaitingRegistrationConfirmation || s.Step == StepAwaitingName || s.Step == StepRegistrationID {
		s.ClearRegistration()
		s.Step = StepRegistrationCancelled
		return nil
	}
	s.Reset()
	s.Step = StepCancelled
	return nil
}
