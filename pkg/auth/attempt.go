package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
)

// AttemptID identifies one attempt. It is unique per Start and doubles as the OAuth state parameter.
type AttemptID string

func newAttemptID() AttemptID {
	return AttemptID(uuid.NewString())
}

// State is the lifecycle position of an attempt. Every state but StatePending is terminal.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of an attempt.
type Outcome struct {
	State    State
	AuthData authdata.AuthData // Set when State is StateSucceeded.
	Err      error             // Set when State is StateFailed.
}

// Succeeded reports whether the attempt produced auth data.
func (o Outcome) Succeeded() bool { return o.State == StateSucceeded }

// Cancelled reports whether the attempt was declined by the user or superseded.
func (o Outcome) Cancelled() bool { return o.State == StateCancelled }

// Attempt is one in-flight login flow and the handle returned to the caller of Start.
type Attempt struct {
	id     AttemptID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
}

func newAttempt(parent context.Context) *Attempt {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Attempt{
		id:      newAttemptID(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		outcome: Outcome{State: StatePending},
	}
}

// ID returns the attempt identity.
func (a *Attempt) ID() AttemptID { return a.id }

// Context is cancelled as soon as the attempt settles. Provider work for the attempt runs under it.
func (a *Attempt) Context() context.Context { return a.ctx }

// Done is closed once the attempt reaches a terminal state.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Outcome returns the current outcome without blocking. State is StatePending until Done is closed.
func (a *Attempt) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	o := a.outcome
	o.AuthData = o.AuthData.Clone()
	return o
}

// Wait blocks until the attempt settles or ctx is done.
// A failed attempt returns its error. A cancelled attempt returns a nil error
// and an Outcome in StateCancelled, so callers can tell "user declined" from "something broke".
func (a *Attempt) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		select {
		case <-a.done:
		default:
			return Outcome{State: StatePending}, ctx.Err()
		}
	}
	o := a.Outcome()
	if o.State == StateFailed {
		return o, o.Err
	}
	return o, nil
}

// settle moves the attempt from pending to o. Only the first call has any effect.
func (a *Attempt) settle(o Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome.State != StatePending {
		return false
	}
	a.outcome = o
	close(a.done)
	a.cancel()
	return true
}
