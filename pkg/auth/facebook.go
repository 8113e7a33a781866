package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ternary "github.com/julien040/go-ternary"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
)

// ===== Facebook OAuth =====

// FacebookUserInfo represents the user information returned by the Facebook Graph API endpoint `/me`.
// Only the id is requested; it is the subject identifier linked on the backend.
// See: https://developers.facebook.com/docs/graph-api/reference/user/
type FacebookUserInfo struct {
	ID string `json:"id"` // The user's app-scoped Facebook ID.
}

// FacebookSession implements SessionAdapter on top of golang.org/x/oauth2 and the Graph API.
// It owns the provider session (token and user id) obtained by the last successful login.
type FacebookSession struct {
	logger      *zap.Logger
	logEnricher LogEnricher
	oauthConfig *oauth2.Config
	graphURL    string
	httpTimeout time.Duration

	mu      sync.Mutex
	handler EventHandler
	pending *pendingFlow
	token   *oauth2.Token
	userID  string
}

// pendingFlow is the open session awaiting its platform result.
type pendingFlow struct {
	ctx         context.Context
	attempt     AttemptID
	requestCode int
}

// NewFacebookSession creates the Facebook adapter from cfg.
// Client ID and Client Secret are required.
func NewFacebookSession(logger *zap.Logger, cfg Config) (*FacebookSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("facebook")
	if cfg.FacebookOAuthClientID == "" || cfg.FacebookOAuthClientSecret == "" {
		logger.Error("Facebook OAuth client ID or secret missing during registration")
		return nil, errors.New("facebook OAuth client ID and secret are required")
	}

	session := &FacebookSession{
		logger:      logger,
		logEnricher: TraceIDEnricher(cfg.TraceIdKey),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.FacebookOAuthClientID,
			ClientSecret: cfg.FacebookOAuthClientSecret,
			RedirectURL:  cfg.FacebookOAuthRedirectURL,
			Scopes:       []string{PermissionPublicProfile},
			Endpoint:     cfg.endpoint(),
		},
		graphURL:    strings.TrimRight(ternary.If(cfg.FacebookGraphURL != "", cfg.FacebookGraphURL, DefaultGraphURL), "/"),
		httpTimeout: ternary.If(cfg.HTTPTimeout > 0, cfg.HTTPTimeout, DefaultHTTPTimeout),
	}
	logger.Info("Facebook session adapter registered using golang.org/x/oauth2",
		zap.String("auth_url", session.oauthConfig.Endpoint.AuthURL))
	return session, nil
}

// Register installs the coordinator's event handler.
func (f *FacebookSession) Register(handler EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// Open builds the authorization URL for req and launches it. The attempt id is sent as state.
func (f *FacebookSession) Open(ctx context.Context, req OpenRequest) error {
	logger := f.logEnricher(ctx, f.logger).Named("open").With(zap.String("attempt", string(req.Attempt)))

	conf := *f.oauthConfig
	if len(req.Permissions) > 0 {
		conf.Scopes = req.Permissions
	}
	authURL := conf.AuthCodeURL(string(req.Attempt))

	f.mu.Lock()
	f.pending = &pendingFlow{ctx: ctx, attempt: req.Attempt, requestCode: req.RequestCode}
	f.mu.Unlock()

	f.emit(Event{Kind: EventOpening, Attempt: req.Attempt})

	if err := req.Launcher.Launch(ctx, authURL); err != nil {
		f.mu.Lock()
		if f.pending != nil && f.pending.attempt == req.Attempt {
			f.pending = nil
		}
		f.mu.Unlock()
		logger.Error("Failed to launch Facebook login", zap.Error(err))
		return &ProviderError{Err: fmt.Errorf("launch login: %w", err)}
	}

	logger.Info("Facebook login launched", zap.Strings("scopes", conf.Scopes))
	return nil
}

// ForwardResult consumes the redirect parameters of the open flow.
// Results for another request code, or carrying another attempt's state, are dropped.
func (f *FacebookSession) ForwardResult(requestCode, resultCode int, data url.Values) {
	logger := f.logger.Named("forward_result").With(zap.Int("request_code", requestCode), zap.Int("result_code", resultCode))

	state := data.Get("state")

	f.mu.Lock()
	flow := f.pending
	switch {
	case flow == nil:
		f.mu.Unlock()
		logger.Debug("No open Facebook session, ignoring result")
		return
	case flow.requestCode != requestCode:
		f.mu.Unlock()
		logger.Debug("Ignoring result for another request code")
		return
	case state != string(flow.attempt) && !(state == "" && resultCode == ResultCanceled):
		f.mu.Unlock()
		logger.Warn("Dropping result with unexpected state", zap.String("state", state))
		return
	}
	f.pending = nil
	f.mu.Unlock()

	logger = logger.With(zap.String("attempt", string(flow.attempt)))

	if resultCode == ResultCanceled || data.Get("error") == "access_denied" {
		logger.Info("Facebook login cancelled by user", zap.String("error_reason", data.Get("error_reason")))
		f.emit(Event{Kind: EventCancelled, Attempt: flow.attempt})
		return
	}
	if e := data.Get("error"); e != "" {
		err := fmt.Errorf("provider returned %q: %s", e, data.Get("error_description"))
		logger.Error("Facebook login returned an error", zap.Error(err))
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &ProviderError{Err: err}})
		return
	}
	if resultCode != ResultOK {
		err := fmt.Errorf("unexpected result code %d", resultCode)
		logger.Error("Facebook login returned an unknown result", zap.Error(err))
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &ProviderError{Err: err}})
		return
	}
	code := data.Get("code")
	if code == "" {
		logger.Error("Facebook redirect is missing the authorization code")
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &ProviderError{Err: ErrInvalidOAuthCode}})
		return
	}

	go f.complete(flow, code)
}

// complete exchanges code for a token, looks up the user id and emits the terminal event.
func (f *FacebookSession) complete(flow *pendingFlow, code string) {
	ctx := flow.ctx
	logger := f.logEnricher(ctx, f.logger).Named("facebook_login").With(zap.String("attempt", string(flow.attempt)))

	token, err := f.oauthConfig.Exchange(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange code for token", zap.Error(err))
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &ProviderError{Err: fmt.Errorf("%w: %w", ErrFailedToExchangeCode, err)}})
		return
	}
	if !token.Valid() {
		logger.Error("Received invalid token")
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &ProviderError{Err: ErrInvalidToken}})
		return
	}

	f.emit(Event{Kind: EventOpened, Attempt: flow.attempt})

	// Use the token to get an HTTP client
	client := f.oauthConfig.Client(ctx, token)
	client.Timeout = f.httpTimeout

	facebookUser, err := fetchFacebookUserInfo(ctx, client, f.graphURL)
	if err != nil {
		logger.Error("Failed to get Facebook user info", zap.Error(err))
		f.emit(Event{Kind: EventFailed, Attempt: flow.attempt, Err: &IdentityLookupError{Err: fmt.Errorf("%w: %w", ErrFailedToGetUserInfo, err)}})
		return
	}

	if !f.storeSession(flow, token, facebookUser.ID) {
		logger.Info("Attempt settled before the identity lookup finished, discarding session")
		return
	}

	logger.Info("Facebook login successful", zap.String("facebook_id", facebookUser.ID))
	f.emit(Event{
		Kind:       EventSucceeded,
		Attempt:    flow.attempt,
		SubjectID:  facebookUser.ID,
		Credential: token.AccessToken,
		Expiration: token.Expiry,
	})
}

// storeSession makes token the live session unless the attempt behind flow has already settled.
// The check and the store happen under f.mu, the same lock Open takes to install a newer flow.
func (f *FacebookSession) storeSession(flow *pendingFlow, token *oauth2.Token, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flow.ctx.Err() != nil {
		return false
	}
	if f.pending != nil && f.pending.attempt != flow.attempt {
		return false
	}
	f.token = token
	f.userID = userID
	return true
}

// Session returns the credential of the current provider session, if one is open.
func (f *FacebookSession) Session() (authdata.Credential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == nil {
		return authdata.Credential{}, false
	}
	return authdata.Credential{
		SubjectID:   f.userID,
		AccessToken: f.token.AccessToken,
		Expiration:  f.token.Expiry.UTC(),
	}, true
}

// UserID returns the Facebook id of the last successful login or restore.
func (f *FacebookSession) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// Restore rebuilds the provider session from linked auth data. A nil payload clears it.
// It reports false when data cannot be decoded. Expired credentials are accepted but leave no session open.
// A zero expiration, stored for tokens issued without expires_in, never expires.
func (f *FacebookSession) Restore(data authdata.AuthData) bool {
	logger := f.logger.Named("restore")

	if authdata.IsUnlink(data) {
		f.mu.Lock()
		f.token = nil
		f.userID = ""
		f.mu.Unlock()
		logger.Info("Cleared Facebook session")
		return true
	}

	cred, err := authdata.Decode(data)
	if err != nil {
		logger.Warn("Failed to restore Facebook session", zap.Error(err))
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = cred.SubjectID
	if !cred.Expiration.IsZero() && !cred.Expiration.After(time.Now()) {
		f.token = nil
		logger.Info("Restored Facebook credential is expired, session left closed", zap.Time("expiration", cred.Expiration))
		return true
	}
	f.token = &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.Expiration,
	}
	logger.Info("Restored Facebook session", zap.String("facebook_id", cred.SubjectID))
	return true
}

func (f *FacebookSession) emit(ev Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// fetchFacebookUserInfo retrieves the authenticated user's id from the Facebook Graph API (`/me`).
// It requires an authorized http.Client.
func fetchFacebookUserInfo(ctx context.Context, client *http.Client, graphURL string) (*FacebookUserInfo, error) {
	reqURL := graphURL + "/me?fields=id"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute user info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var graphErr struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &graphErr) == nil && graphErr.Error != nil {
			return nil, graphErr.Error
		}
		return nil, fmt.Errorf("failed to get user info: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var userInfo FacebookUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info response: %w", err)
	}
	if userInfo.ID == "" {
		return nil, errors.New("user info response has no id")
	}
	return &userInfo, nil
}
