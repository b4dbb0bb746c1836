package domain

import "time"

// EventKind classifies operator-facing notifications.
type EventKind string

const (
	EventOrderFailed    EventKind = "ORDER_FAILED"
	EventOrderUnknown   EventKind = "ORDER_UNKNOWN"
	EventReconciled     EventKind = "ORDER_RECONCILED"
	EventStateFallback  EventKind = "STATE_FALLBACK"
	EventCircuitTripped EventKind = "CIRCUIT_TRIPPED"
)

// Event is the payload handed to the notifier. Delivery (console, email,
// chat) is an external collaborator's problem.
type Event struct {
	Kind     EventKind
	Strategy string
	Symbol   string
	Detail   string
	At       time.Time
}
