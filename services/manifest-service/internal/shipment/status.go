package shipment

import (
	"errors"
	"fmt"
	"strings"
)

// ShipmentStatus is the lifecycle state of a single shipment (one AWB).
type ShipmentStatus string

const (
	StatusCreated          ShipmentStatus = "CREATED"
	StatusPickupScheduled  ShipmentStatus = "PICKUP_SCHEDULED"
	StatusPickedUp         ShipmentStatus = "PICKED_UP"
	StatusReceivedAtOrigin ShipmentStatus = "RECEIVED_AT_ORIGIN"
	StatusInTransit        ShipmentStatus = "IN_TRANSIT"
	StatusReceivedAtDest   ShipmentStatus = "RECEIVED_AT_DEST"
	StatusOutForDelivery   ShipmentStatus = "OUT_FOR_DELIVERY"
	StatusDelivered        ShipmentStatus = "DELIVERED"
	StatusCancelled        ShipmentStatus = "CANCELLED"
	StatusRTO              ShipmentStatus = "RTO"
	StatusException        ShipmentStatus = "EXCEPTION"

	// StatusLoadedForLinehaul is written only by manifest close. Staff can never
	// move a shipment into or out of it by hand.
	StatusLoadedForLinehaul ShipmentStatus = "LOADED_FOR_LINEHAUL"
)

var (
	ErrUnknownStatus     = errors.New("unknown shipment status")
	ErrInvalidTransition = errors.New("invalid shipment status transition")
)

// transitions is the manual transition table. A status with no entry (or an
// empty entry) has no legal outgoing move.
var transitions = map[ShipmentStatus][]ShipmentStatus{
	StatusCreated:          {StatusPickupScheduled, StatusCancelled},
	StatusPickupScheduled:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:         {StatusReceivedAtOrigin, StatusException},
	StatusReceivedAtOrigin: {StatusInTransit, StatusException},
	StatusInTransit:        {StatusReceivedAtDest, StatusException},
	StatusReceivedAtDest:   {StatusOutForDelivery, StatusException},
	StatusOutForDelivery:   {StatusDelivered, StatusRTO, StatusException},
	StatusDelivered:        {},
	StatusCancelled:        {},
	StatusRTO:              {StatusReceivedAtOrigin},
	StatusException:        {StatusReceivedAtOrigin, StatusReceivedAtDest, StatusCancelled},
}

var known = map[ShipmentStatus]struct{}{
	StatusLoadedForLinehaul: {},
}

func init() {
	for s := range transitions {
		known[s] = struct{}{}
	}
}

// IsValidTransition reports whether a shipment may move from current to next.
// Unknown statuses on either side yield false.
func IsValidTransition(current, next ShipmentStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition is IsValidTransition for callers that want an error to wrap.
func ValidateTransition(current, next ShipmentStatus) error {
	if !IsValidTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// AllowedTransitions returns a copy of the legal next statuses.
func AllowedTransitions(current ShipmentStatus) []ShipmentStatus {
	next := transitions[current]
	out := make([]ShipmentStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal is true for DELIVERED and CANCELLED.
func IsTerminal(s ShipmentStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// ParseStatus maps a raw database or request value onto a ShipmentStatus.
// Unknown values are rejected instead of being passed through.
func ParseStatus(raw string) (ShipmentStatus, error) {
	s := ShipmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := known[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s ShipmentStatus) String() string {
	return string(s)
}
