package booking

import (
	"github.com/medconnect/whatsapp-booking-agent/internal/intent"
)

// node names an executable flow handler. Steps describe where the
// conversation sits, nodes describe what runs next.
type node string

const (
	nodeVerifyPatient        node = "verify_patient"
	nodeNeedsRegistration    node = "needs_registration"
	nodeStartRegistration    node = "start_registration"
	nodeProcessName          node = "process_name"
	nodeProcessNationalID    node = "process_national_id"
	nodeCompleteRegistration node = "complete_registration"
	nodeFetchServiceTypes    node = "fetch_service_types"
	nodeSelectServiceType    node = "select_service_type"
	nodeFetchServices        node = "fetch_services"
	nodeSelectService        node = "select_service"
	nodeFetchResources       node = "fetch_resources"
	nodeSelectDoctor         node = "select_doctor"
	nodeSelectSpecialist     node = "select_specialist"
	nodeSelectDevice         node = "select_device"
	nodeFetchTimeSlots       node = "fetch_time_slots"
	nodeSelectTimeSlot       node = "select_time_slot"
	nodeConfirmBooking       node = "confirm_booking"
	nodeCreateBooking        node = "create_booking"
	nodeSendConfirmation     node = "send_confirmation"
	nodeCancelBooking        node = "cancel_booking"
	nodeHandleError          node = "handle_error"
	nodeHandleLoop           node = "handle_loop"
	nodeEnd                  node = "end"
)

// turnEnders always finish the turn after running, regardless of the step
// they leave behind.
var turnEnders = map[node]bool{
	nodeHandleError:      true,
	nodeHandleLoop:       true,
	nodeSendConfirmation: true,
	nodeCancelBooking:    true,
}

// routeTurn picks the entry node for a new inbound message based on where
// the previous turn left the conversation.
func routeTurn(s *State, it intent.Intent) node {
	// A conversation stuck on the recovery step twice in a row starts over.
	if s.Step == StepErrorRecovery {
		s.Reset()
		return nodeVerifyPatient
	}

	// Mid-flow states that claim a verified patient but lost the backend
	// record go back through verification rather than booking blind. A
	// verified patient id is enough identity, profile gaps like a missing
	// national id never bounce a known patient out of the flow.
	if s.PatientVerified && restrictedToVerified(s.Step) && s.PatientID == 0 {
		s.PatientVerified = false
		return nodeVerifyPatient
	}

	switch s.Step {
	case StepStart, StepCompleted, StepCancelled, StepRegistrationCancelled, StepCatastrophicFailure:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeVerifyPatient

	case StepAwaitingRegistrationConfirmation:
		switch it {
		case intent.Confirmation, intent.Registration, intent.Booking:
			return nodeStartRegistration
		case intent.Negation, intent.Cancel:
			return nodeCancelBooking
		}
		return nodeNeedsRegistration

	case StepAwaitingName:
		return nodeProcessName

	case StepRegistrationID:
		return nodeProcessNationalID

	case StepAwaitingServiceSelection:
		switch it {
		case intent.Cancel, intent.Negation:
			return nodeCancelBooking
		}
		// A service pinned from an earlier exchange skips the menus.
		if s.ServiceID != 0 {
			return nodeFetchResources
		}
		return nodeFetchServiceTypes

	case StepAwaitingServiceType:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectServiceType

	case StepAwaitingService:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectService

	case StepAwaitingDoctor:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectDoctor

	case StepAwaitingSpecialist:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectSpecialist

	case StepAwaitingDevice:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectDevice

	case StepAwaitingTimeSlot:
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeSelectTimeSlot

	case StepAwaitingConfirmation:
		switch it {
		case intent.Confirmation:
			return nodeCreateBooking
		case intent.Negation, intent.Cancel:
			return nodeCancelBooking
		}
		// Anything ambiguous gets the summary again.
		return nodeConfirmBooking

	case StepNoSlotsAvailable:
		// Let the patient pick a different service instead of resetting.
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		return nodeFetchServices

	case StepValidationFailed:
		// The final check found a hole. Re-collect the missing piece
		// locally instead of resetting the conversation.
		if it == intent.Cancel {
			return nodeCancelBooking
		}
		if s.ServiceID == 0 {
			return nodeFetchServiceTypes
		}
		return nodeFetchResources

	case StepErrorNoServiceType:
		// The catalog was empty last turn. Clear the failure and try again.
		s.LastError = ""
		s.CriticalFailures = 0
		return nodeFetchServiceTypes
	}

	if s.Step.IsError() {
		return nodeHandleError
	}
	return nodeVerifyPatient
}

// restrictedToVerified lists steps that must only be reachable with full
// patient identity on the state.
func restrictedToVerified(s Step) bool {
	switch s {
	case StepAwaitingServiceSelection, StepAwaitingServiceType, StepAwaitingService,
		StepAwaitingDoctor, StepAwaitingSpecialist, StepAwaitingDevice,
		StepAwaitingTimeSlot, StepAwaitingConfirmation:
		return true
	}
	return false
}

// nextNode chains action steps inside a single turn. It returns nodeEnd when
// the step waits for input or terminates the conversation.
func nextNode(s *State) node {
	if s.Step.IsWaiting() || s.Step == StepRegistrationID || s.Step.IsTerminal() {
		return nodeEnd
	}
	switch s.Step {
	case StepVerifyPatient:
		return nodeVerifyPatient
	case StepNeedsRegistration:
		return nodeNeedsRegistration
	case StepStartRegistration:
		return nodeStartRegistration
	case StepRegistrationComplete, StepRegistrationCompleteMultiline:
		return nodeCompleteRegistration
	case StepFetchServiceTypes:
		return nodeFetchServiceTypes
	case StepServiceTypeSelected, StepFetchServices:
		return nodeFetchServices
	case StepServiceSelected, StepFetchResources:
		return nodeFetchResources
	case StepDoctorSelected, StepSpecialistSelected, StepDeviceSelected, StepFetchTimeSlots:
		return nodeFetchTimeSlots
	case StepTimeSlotSelected, StepConfirmBooking:
		return nodeConfirmBooking
	case StepCreateBooking:
		return nodeCreateBooking
	case StepBookingCreated, StepSendConfirmation:
		return nodeSendConfirmation
	case StepNoSlotsAvailable, StepUnknownRequirement, StepServiceNotFound,
		StepPatientVerificationError:
		return nodeEnd
	}
	if s.Step.IsError() {
		return nodeHandleError
	}
	return nodeEnd
}
