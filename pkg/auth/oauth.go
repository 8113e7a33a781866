package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// AuthType is the auth-data key under which Facebook credentials are linked on the backend.
const AuthType = "facebook"

// Default endpoints and limits used when the corresponding Config field is empty.
const (
	DefaultGraphURL    = "https://graph.facebook.com"
	DefaultHTTPTimeout = 10 * time.Second
)

// Config holds the configuration needed to drive the Facebook login flow.
// Client ID, Client Secret, and Redirect URL must be provided.
type Config struct {
	// Facebook OAuth Configuration
	FacebookOAuthClientID     string `env:"FACEBOOK_APP_ID"`
	FacebookOAuthClientSecret string `env:"FACEBOOK_APP_SECRET"`
	FacebookOAuthRedirectURL  string `env:"FACEBOOK_REDIRECT_URL"`

	// Optional endpoint overrides. Empty values fall back to facebook.Endpoint and DefaultGraphURL.
	FacebookAuthURL  string `env:"FACEBOOK_AUTH_URL"`
	FacebookTokenURL string `env:"FACEBOOK_TOKEN_URL"`
	FacebookGraphURL string `env:"FACEBOOK_GRAPH_URL"`

	// HTTPTimeout bounds the token exchange client used for Graph API calls.
	HTTPTimeout time.Duration `env:"FACEBOOK_HTTP_TIMEOUT" envDefault:"10s"`

	// TraceIdKey is the key used to extract the trace ID from the context for logging.
	TraceIdKey string `env:"TRACE_ID_KEY"`
}

// LoadConfigFromEnv reads Config from FACEBOOK_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// WithManifest fills the application id from m when the config does not carry one.
// An explicitly configured id always wins over the manifest.
func (c Config) WithManifest(m Manifest) Config {
	if c.FacebookOAuthClientID == "" {
		c.FacebookOAuthClientID = m.ApplicationID
	}
	return c
}

// endpoint returns facebook.Endpoint with any configured overrides applied.
func (c Config) endpoint() oauth2.Endpoint {
	ep := facebook.Endpoint
	if c.FacebookAuthURL != "" {
		ep.AuthURL = c.FacebookAuthURL
	}
	if c.FacebookTokenURL != "" {
		ep.TokenURL = c.FacebookTokenURL
		ep.AuthStyle = oauth2.AuthStyleInParams
	}
	return ep
}

// Predefined errors related to the OAuth process.
var (
	// ErrInvalidOAuthCode indicates that the provider redirected back without a usable authorization code.
	ErrInvalidOAuthCode = errors.New("invalid oauth code")
	// ErrFailedToGetUserInfo indicates an error occurred while fetching user details from the provider.
	ErrFailedToGetUserInfo = errors.New("failed to get user info")
	// ErrFailedToExchangeCode indicates an error occurred during the token exchange process.
	ErrFailedToExchangeCode = errors.New("failed to exchange code for token")
	// ErrInvalidToken indicates the provider returned a token that is already unusable.
	ErrInvalidToken = errors.New("received invalid token from provider")
	// ErrMissingLaunchContext indicates Start was called without a live launcher.
	ErrMissingLaunchContext = errors.New("launch context unavailable")
	// ErrUnknownFailure stands in for the cause of a failure resolved without an error.
	ErrUnknownFailure = errors.New("authentication failed without a cause")
)

// LogEnricher lets callers attach request scoped fields (e.g. a trace id) to a logger.
type LogEnricher func(ctx context.Context, logger *zap.Logger) *zap.Logger

// ContextKey is the type of the context key holding the trace id, see Config.TraceIdKey.
type ContextKey string

// withTraceID adds the trace id stored under key in ctx, if any.
func withTraceID(ctx context.Context, logger *zap.Logger, key string) *zap.Logger {
	if key == "" || ctx == nil {
		return logger
	}
	if traceID, ok := ctx.Value(ContextKey(key)).(string); ok && traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

// TraceIDEnricher returns a LogEnricher that reads the trace id stored under key.
func TraceIDEnricher(key string) LogEnricher {
	return func(ctx context.Context, logger *zap.Logger) *zap.Logger {
		return withTraceID(ctx, logger, key)
	}
}
