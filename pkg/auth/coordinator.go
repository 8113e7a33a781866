package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	ternary "github.com/julien040/go-ternary"
	"go.uber.org/zap"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
)

// DefaultRequestCode routes platform results to the login flow when StartConfig.RequestCode is zero.
const DefaultRequestCode = 32665

// StartConfig describes one login flow.
type StartConfig struct {
	Permissions []string // Requested permissions; empty requests the provider default.
	Launcher    Launcher // Live UI host. Required.
	RequestCode int      // Routing code expected by ForwardPlatformResult; zero means DefaultRequestCode.
}

func (c StartConfig) requestCode() int {
	return ternary.If(c.RequestCode != 0, c.RequestCode, DefaultRequestCode)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogEnricher sets the function used to enrich logs with request scoped fields.
func WithLogEnricher(fn LogEnricher) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.logEnricher = fn
		}
	}
}

// Coordinator owns at most one outstanding Attempt. Starting a new attempt cancels the
// previous one, and provider events are honoured only for the attempt currently in the slot.
// All methods are safe for concurrent use.
type Coordinator struct {
	logger      *zap.Logger
	logEnricher LogEnricher
	adapter     SessionAdapter

	// startMu serializes Start end to end, so the adapter always opens the slot's occupant.
	startMu sync.Mutex

	mu      sync.Mutex
	current *Attempt
}

// NewCoordinator creates a Coordinator driving adapter and registers itself as the adapter's event handler.
func NewCoordinator(logger *zap.Logger, adapter SessionAdapter, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		logger:      logger.Named("coordinator"),
		logEnricher: func(_ context.Context, l *zap.Logger) *zap.Logger { return l },
		adapter:     adapter,
	}
	for _, opt := range opts {
		opt(c)
	}
	adapter.Register(c.handleEvent)
	return c
}

// Start begins a new login flow and returns its pending handle.
// Any attempt still in flight settles as cancelled before the new one is installed.
// A nil Launcher fails with a *PreconditionError and leaves the current attempt untouched.
// Start returns only after the Launcher does; see Launcher for the non-blocking requirement.
func (c *Coordinator) Start(ctx context.Context, cfg StartConfig) (*Attempt, error) {
	logger := c.logEnricher(ctx, c.logger).Named("start")

	if cfg.Launcher == nil {
		logger.Error("Launcher must be non-nil for authentication to proceed")
		return nil, &PreconditionError{
			Reason: "launcher must be non-nil for authentication to proceed",
			Err:    ErrMissingLaunchContext,
		}
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	attempt := newAttempt(ctx)

	c.mu.Lock()
	if previous := c.current; previous != nil {
		previous.settle(Outcome{State: StateCancelled})
		logger.Info("Superseded in-flight attempt", zap.String("attempt", string(previous.id)))
	}
	c.current = attempt
	c.mu.Unlock()

	req := OpenRequest{
		Attempt:     attempt.id,
		Permissions: append([]string(nil), cfg.Permissions...),
		RequestCode: cfg.requestCode(),
		Launcher:    cfg.Launcher,
	}
	logger = logger.With(zap.String("attempt", string(attempt.id)), zap.Int("request_code", req.RequestCode))
	if err := c.adapter.Open(attempt.ctx, req); err != nil {
		logger.Error("Failed to open provider session", zap.Error(err))
		var providerErr *ProviderError
		if !errors.As(err, &providerErr) {
			err = &ProviderError{Err: err}
		}
		c.ResolveFailure(attempt.id, err)
		return attempt, nil
	}

	logger.Info("Authentication attempt started", zap.Strings("permissions", req.Permissions))
	return attempt, nil
}

// ResolveSuccess settles attempt id with the auth data built from the given credential.
// It reports false, doing nothing, when id is not the current attempt.
func (c *Coordinator) ResolveSuccess(id AttemptID, subjectID, credential string, expiration time.Time) bool {
	data := authdata.Encode(subjectID, credential, expiration)
	return c.resolve(id, Outcome{State: StateSucceeded, AuthData: data})
}

// ResolveFailure settles attempt id with err. It is a no-op when id is not the current attempt.
// A nil err is recorded as a *ProviderError wrapping ErrUnknownFailure.
func (c *Coordinator) ResolveFailure(id AttemptID, err error) bool {
	if err == nil {
		err = &ProviderError{Err: ErrUnknownFailure}
	}
	return c.resolve(id, Outcome{State: StateFailed, Err: err})
}

// ResolveCancelled settles attempt id as cancelled. It is a no-op when id is not the current attempt.
func (c *Coordinator) ResolveCancelled(id AttemptID) bool {
	return c.resolve(id, Outcome{State: StateCancelled})
}

// ForwardPlatformResult passes a platform result to the adapter.
// Host code must call it for every result it receives; unrelated request codes are ignored downstream.
func (c *Coordinator) ForwardPlatformResult(requestCode, resultCode int, data url.Values) {
	c.adapter.ForwardResult(requestCode, resultCode, data)
}

// Current returns the id of the attempt occupying the slot, if any.
func (c *Coordinator) Current() (AttemptID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", false
	}
	return c.current.id, true
}

func (c *Coordinator) resolve(id AttemptID, o Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.id != id {
		return false
	}
	attempt := c.current
	c.current = nil
	return attempt.settle(o)
}

func (c *Coordinator) handleEvent(ev Event) {
	logger := c.logger.Named("event").With(
		zap.String("attempt", string(ev.Attempt)),
		zap.Stringer("kind", ev.Kind),
	)

	var applied bool
	switch ev.Kind {
	case EventOpening, EventOpened:
		logger.Debug("Provider session progressed")
		return
	case EventSucceeded:
		applied = c.ResolveSuccess(ev.Attempt, ev.SubjectID, ev.Credential, ev.Expiration)
	case EventFailed:
		applied = c.ResolveFailure(ev.Attempt, ev.Err)
	case EventCancelled:
		applied = c.ResolveCancelled(ev.Attempt)
	default:
		logger.Warn("Ignoring unknown provider event")
		return
	}

	if !applied {
		logger.Debug("Dropped event for an attempt that is no longer current")
		return
	}
	if ev.Err != nil {
		logger.Warn("Authentication attempt failed", zap.Error(ev.Err))
		return
	}
	logger.Info("Authentication attempt resolved")
}
