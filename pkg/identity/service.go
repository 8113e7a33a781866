// Package identity links Facebook identities to backend users.
//
// A Service bundles the login Coordinator, the Facebook session adapter and a
// backend.Backend, and offers the link, unlink and log in operations an
// application calls. Create one Service per application.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/GOAuthBridge/pkg/auth"
	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
	"github.com/Suhaibinator/GOAuthBridge/pkg/backend"
)

var (
	// ErrNotLinked is returned when an operation needs a user already linked to Facebook.
	ErrNotLinked = errors.New("the user must already be linked to Facebook")
	// ErrNoSession is returned when no Facebook session is open.
	ErrNoSession = errors.New("no open Facebook session")
)

// Service links Facebook identities to backend users.
type Service struct {
	logger      *zap.Logger
	backend     backend.Backend
	session     *auth.FacebookSession
	coordinator *auth.Coordinator
}

// New creates a Service from cfg, storing identities on be.
func New(logger *zap.Logger, cfg auth.Config, be backend.Backend, opts ...auth.Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if be == nil {
		return nil, errors.New("backend is required")
	}
	session, err := auth.NewFacebookSession(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("create facebook session: %w", err)
	}
	if cfg.TraceIdKey != "" {
		opts = append([]auth.Option{auth.WithLogEnricher(auth.TraceIDEnricher(cfg.TraceIdKey))}, opts...)
	}
	return &Service{
		logger:      logger.Named("identity"),
		backend:     be,
		session:     session,
		coordinator: auth.NewCoordinator(logger, session, opts...),
	}, nil
}

// FromManifest creates a Service whose application id falls back to the one declared in the manifest at path.
func FromManifest(logger *zap.Logger, path string, cfg auth.Config, be backend.Backend, opts ...auth.Option) (*Service, error) {
	m, err := auth.LoadManifestFile(path)
	if err != nil {
		return nil, err
	}
	return New(logger, cfg.WithManifest(m), be, opts...)
}

// Coordinator returns the login coordinator.
func (s *Service) Coordinator() *auth.Coordinator { return s.coordinator }

// Session returns the Facebook session adapter.
func (s *Service) Session() *auth.FacebookSession { return s.session }

// IsLinked reports whether userID is linked to Facebook.
func (s *Service) IsLinked(ctx context.Context, userID string) (bool, error) {
	return s.backend.IsLinked(ctx, userID, auth.AuthType)
}

// LinkWithCredentials links userID to an identity the caller already holds credentials for.
func (s *Service) LinkWithCredentials(ctx context.Context, userID, facebookID, accessToken string, expiration time.Time) error {
	return s.link(ctx, userID, authdata.Encode(facebookID, accessToken, expiration))
}

// Link runs the login flow described by cfg and links the resulting identity to userID.
// It returns false with a nil error when the user cancels the flow.
func (s *Service) Link(ctx context.Context, userID string, cfg auth.StartConfig) (bool, error) {
	outcome, err := s.authenticate(ctx, cfg)
	if err != nil {
		return false, err
	}
	if !outcome.Succeeded() {
		return false, nil
	}
	if err := s.link(ctx, userID, outcome.AuthData); err != nil {
		return false, err
	}
	return true, nil
}

// LogInWithCredentials logs in, or signs up, the user owning the given Facebook identity.
func (s *Service) LogInWithCredentials(ctx context.Context, facebookID, accessToken string, expiration time.Time) (*backend.User, error) {
	return s.logIn(ctx, authdata.Encode(facebookID, accessToken, expiration))
}

// LogIn runs the login flow described by cfg and logs in the user owning the resulting identity.
// It returns a nil user and a nil error when the user cancels the flow.
func (s *Service) LogIn(ctx context.Context, cfg auth.StartConfig) (*backend.User, error) {
	outcome, err := s.authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !outcome.Succeeded() {
		return nil, nil
	}
	return s.logIn(ctx, outcome.AuthData)
}

// Unlink removes the Facebook identity from userID and closes the local session.
func (s *Service) Unlink(ctx context.Context, userID string) error {
	if err := s.backend.UnlinkFrom(ctx, userID, auth.AuthType); err != nil {
		return fmt.Errorf("unlink user %s: %w", userID, err)
	}
	s.session.Restore(nil)
	s.logger.Info("Unlinked Facebook identity", zap.String("user_id", userID))
	return nil
}

// FinishAuthentication forwards a platform result to the login flow.
// Call it for every result the host receives.
func (s *Service) FinishAuthentication(requestCode, resultCode int, data url.Values) {
	s.coordinator.ForwardPlatformResult(requestCode, resultCode, data)
}

// SaveLatestSessionData writes the credential of the open session to userID, which must already be linked.
func (s *Service) SaveLatestSessionData(ctx context.Context, userID string) error {
	linked, err := s.IsLinked(ctx, userID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrNotLinked
	}
	cred, ok := s.session.Session()
	if !ok {
		return ErrNoSession
	}
	return s.link(ctx, userID, authdata.Encode(cred.SubjectID, cred.AccessToken, cred.Expiration))
}

// Restore rebuilds the local session from auth data read off a user. A nil data closes it.
func (s *Service) Restore(data authdata.AuthData) bool {
	return s.session.Restore(data)
}

// RestoreUser rebuilds the local session from the Facebook identity linked to user.
func (s *Service) RestoreUser(user *backend.User) bool {
	if !user.IsLinked(auth.AuthType) {
		return s.Restore(nil)
	}
	return s.Restore(user.AuthData[auth.AuthType])
}

// authenticate runs one attempt to completion. An abandoned wait cancels the attempt.
func (s *Service) authenticate(ctx context.Context, cfg auth.StartConfig) (auth.Outcome, error) {
	attempt, err := s.coordinator.Start(ctx, cfg)
	if err != nil {
		return auth.Outcome{}, err
	}
	outcome, err := attempt.Wait(ctx)
	if err != nil && ctx.Err() != nil && outcome.State == auth.StatePending {
		s.coordinator.ResolveCancelled(attempt.ID())
	}
	return outcome, err
}

func (s *Service) link(ctx context.Context, userID string, data authdata.AuthData) error {
	if err := s.backend.LinkWith(ctx, userID, auth.AuthType, data); err != nil {
		return fmt.Errorf("link user %s: %w", userID, err)
	}
	s.session.Restore(data)
	s.logger.Info("Linked Facebook identity", zap.String("user_id", userID))
	return nil
}

func (s *Service) logIn(ctx context.Context, data authdata.AuthData) (*backend.User, error) {
	user, err := s.backend.LogInWith(ctx, auth.AuthType, data)
	if err != nil {
		return nil, fmt.Errorf("log in with facebook: %w", err)
	}
	s.session.Restore(data)
	s.logger.Info("Logged in with Facebook",
		zap.String("user_id", user.ID),
		zap.Bool("is_new", user.IsNew),
	)
	return user, nil
}
