package auth

import "time"

// EventKind tags an Event emitted by a SessionAdapter.
type EventKind int

const (
	// EventOpening is emitted when the login UI is about to be launched. Informational.
	EventOpening EventKind = iota
	// EventOpened is emitted once the provider granted a token, before the identity lookup. Informational.
	EventOpened
	// EventSucceeded carries the subject id, credential and expiration of a completed login.
	EventSucceeded
	// EventFailed carries the error that ended the flow.
	EventFailed
	// EventCancelled is emitted when the user declined or closed the login UI.
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventOpening:
		return "opening"
	case EventOpened:
		return "opened"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is a single state transition of a provider session, addressed to one attempt.
type Event struct {
	Kind    EventKind
	Attempt AttemptID

	SubjectID  string    // EventSucceeded only.
	Credential string    // EventSucceeded only.
	Expiration time.Time // EventSucceeded only.

	Err error // EventFailed only.
}

// EventHandler receives every Event of an adapter. It may be called from any goroutine.
type EventHandler func(Event)
