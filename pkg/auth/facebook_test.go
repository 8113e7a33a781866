package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
)

const (
	testCode  = "good-code"
	testToken = "tok1"
	testID    = "u1"
)

// fakeFacebook serves the token and Graph endpoints used by FacebookSession.
type fakeFacebook struct {
	*httptest.Server
	meStatus  int
	meArrived chan struct{}
	meBlock   bool
	noExpiry  bool // token responses omit expires_in
}

func newFakeFacebook(t *testing.T) *fakeFacebook {
	t.Helper()
	fb := &fakeFacebook{meStatus: http.StatusOK, meArrived: make(chan struct{}, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != testCode {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{
			"access_token": testToken,
			"token_type":   "bearer",
			"expires_in":   3600,
		}
		if fb.noExpiry {
			delete(body, "expires_in")
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		select {
		case fb.meArrived <- struct{}{}:
		default:
		}
		if fb.meBlock {
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+testToken || r.URL.Query().Get("fields") != "id" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad token","type":"OAuthException","code":190}}`))
			return
		}
		if fb.meStatus != http.StatusOK {
			w.WriteHeader(fb.meStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"OAuthException","code":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + testID + `"}`))
	})
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeFacebook) config() Config {
	return Config{
		FacebookOAuthClientID:     "app-id",
		FacebookOAuthClientSecret: "app-secret",
		FacebookOAuthRedirectURL:  "http://localhost/callback/facebook",
		FacebookAuthURL:           fb.URL + "/dialog/oauth",
		FacebookTokenURL:          fb.URL + "/oauth/access_token",
		FacebookGraphURL:          fb.URL,
	}
}

// capturingLauncher records every authorization URL it is asked to open.
type capturingLauncher struct {
	mu   sync.Mutex
	urls []*url.URL
	err  error
}

func (l *capturingLauncher) Launch(_ context.Context, authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, u)
	return l.err
}

func (l *capturingLauncher) last() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.urls[len(l.urls)-1]
}

func newFacebookCoordinator(t *testing.T, fb *fakeFacebook) (*Coordinator, *FacebookSession) {
	t.Helper()
	session, err := NewFacebookSession(zaptest.NewLogger(t), fb.config())
	require.NoError(t, err)
	return NewCoordinator(zaptest.NewLogger(t), session), session
}

func redirect(state string, kv ...string) url.Values {
	v := url.Values{"state": {state}}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func TestNewFacebookSessionRequiresCredentials(t *testing.T) {
	_, err := NewFacebookSession(zaptest.NewLogger(t), Config{FacebookOAuthClientID: "id"})
	assert.Error(t, err)
}

func TestFacebookAuthURL(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	launcher := &capturingLauncher{}

	attempt, err := c.Start(context.Background(), StartConfig{
		Permissions: []string{PermissionEmail, PermissionUserLikes},
		Launcher:    launcher,
	})
	require.NoError(t, err)

	u := launcher.last()
	assert.Equal(t, "/dialog/oauth", u.Path)
	q := u.Query()
	assert.Equal(t, "app-id", q.Get("client_id"))
	assert.Equal(t, string(attempt.ID()), q.Get("state"))
	assert.Equal(t, []string{"email", "user_likes"}, strings.Fields(q.Get("scope")))
	assert.Equal(t, "http://localhost/callback/facebook", q.Get("redirect_uri"))
}

func TestFacebookDefaultScope(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	launcher := &capturingLauncher{}

	_, err := c.Start(context.Background(), StartConfig{Launcher: launcher})
	require.NoError(t, err)

	assert.Equal(t, PermissionPublicProfile, launcher.last().Query().Get("scope"))
}

func TestFacebookLoginSuccess(t *testing.T) {
	fb := newFakeFacebook(t)
	c, session := newFacebookCoordinator(t, fb)
	launcher := &capturingLauncher{}
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: launcher})
	require.NoError(t, err)
	before := time.Now()

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(attempt.ID()), "code", testCode))

	outcome := waitOutcome(t, attempt)
	require.Equal(t, StateSucceeded, outcome.State, "err: %v", outcome.Err)
	cred, err := authdata.Decode(outcome.AuthData)
	require.NoError(t, err)
	assert.Equal(t, testID, cred.SubjectID)
	assert.Equal(t, testToken, cred.AccessToken)
	assert.WithinDuration(t, before.Add(time.Hour), cred.Expiration, time.Minute)

	current, ok := session.Session()
	require.True(t, ok)
	assert.Equal(t, testID, current.SubjectID)
	assert.Equal(t, testToken, current.AccessToken)
	assert.Equal(t, testID, session.UserID())
}

func TestFacebookIgnoresOtherRequestCodes(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}, RequestCode: 42})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(attempt.ID()), "code", testCode))
	assert.Equal(t, StatePending, attempt.Outcome().State)

	c.ForwardPlatformResult(42, ResultOK, redirect(string(attempt.ID()), "code", testCode))
	assert.Equal(t, StateSucceeded, waitOutcome(t, attempt).State)
}

func TestFacebookDropsResultWithForeignState(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect("someone-else", "code", testCode))
	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, url.Values{"code": {testCode}})
	assert.Equal(t, StatePending, attempt.Outcome().State)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(attempt.ID()), "code", testCode))
	assert.Equal(t, StateSucceeded, waitOutcome(t, attempt).State)
}

func TestFacebookUserDenied(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK,
		redirect(string(attempt.ID()), "error", "access_denied", "error_reason", "user_denied"))

	outcome, err := attempt.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Cancelled())
}

func TestFacebookCanceledResultWithoutData(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultCanceled, nil)

	assert.True(t, waitOutcome(t, attempt).Cancelled())
}

func TestFacebookProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		resultCode int
		data       func(state string) url.Values
		wantIs     error
	}{
		{
			name:       "provider error",
			resultCode: ResultOK,
			data: func(s string) url.Values {
				return redirect(s, "error", "server_error", "error_description", "boom")
			},
		},
		{
			name:       "missing code",
			resultCode: ResultOK,
			data:       func(s string) url.Values { return redirect(s) },
			wantIs:     ErrInvalidOAuthCode,
		},
		{
			name:       "rejected code",
			resultCode: ResultOK,
			data:       func(s string) url.Values { return redirect(s, "code", "bad-code") },
			wantIs:     ErrFailedToExchangeCode,
		},
		{
			name:       "unknown result code",
			resultCode: 5,
			data:       func(s string) url.Values { return redirect(s, "code", testCode) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeFacebook(t)
			c, _ := newFacebookCoordinator(t, fb)
			attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
			require.NoError(t, err)

			c.ForwardPlatformResult(DefaultRequestCode, tt.resultCode, tt.data(string(attempt.ID())))

			outcome := waitOutcome(t, attempt)
			require.Equal(t, StateFailed, outcome.State)
			var providerErr *ProviderError
			assert.ErrorAs(t, outcome.Err, &providerErr)
			if tt.wantIs != nil {
				assert.ErrorIs(t, outcome.Err, tt.wantIs)
			}
		})
	}
}

func TestFacebookIdentityLookupFailure(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.meStatus = http.StatusServiceUnavailable
	c, session := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(attempt.ID()), "code", testCode))

	outcome := waitOutcome(t, attempt)
	require.Equal(t, StateFailed, outcome.State)
	var lookupErr *IdentityLookupError
	require.ErrorAs(t, outcome.Err, &lookupErr)
	assert.ErrorIs(t, outcome.Err, ErrFailedToGetUserInfo)
	var graphErr *GraphError
	require.ErrorAs(t, outcome.Err, &graphErr)
	assert.Equal(t, 2, graphErr.Code)
	_, ok := session.Session()
	assert.False(t, ok)
}

func TestFacebookLauncherFailure(t *testing.T) {
	fb := newFakeFacebook(t)
	c, _ := newFacebookCoordinator(t, fb)
	launcher := &capturingLauncher{err: errors.New("no browser")}

	attempt, err := c.Start(context.Background(), StartConfig{Launcher: launcher})
	require.NoError(t, err)

	_, err = attempt.Wait(context.Background())
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.ErrorIs(t, err, launcher.err)
}

func TestFacebookSupersededWhileLookupInFlight(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.meBlock = true
	c, _ := newFacebookCoordinator(t, fb)
	a, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)
	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(a.ID()), "code", testCode))

	select {
	case <-fb.meArrived:
	case <-time.After(2 * time.Second):
		t.Fatal("identity lookup never started")
	}

	b, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	assert.True(t, waitOutcome(t, a).Cancelled())
	assert.Equal(t, StatePending, b.Outcome().State)
	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, b.ID(), current)
}

func TestFacebookRestore(t *testing.T) {
	fb := newFakeFacebook(t)
	session, err := NewFacebookSession(zaptest.NewLogger(t), fb.config())
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)

	require.True(t, session.Restore(authdata.Encode("u9", "tok9", exp)))
	cred, ok := session.Session()
	require.True(t, ok)
	assert.Equal(t, "u9", cred.SubjectID)
	assert.Equal(t, "tok9", cred.AccessToken)
	assert.True(t, cred.Expiration.Equal(exp))

	assert.False(t, session.Restore(authdata.AuthData{"id": "u9"}))
	_, ok = session.Session()
	assert.True(t, ok, "failed restore keeps the previous session")

	require.True(t, session.Restore(nil))
	_, ok = session.Session()
	assert.False(t, ok)
	assert.Empty(t, session.UserID())
}

func TestFacebookRestoreExpired(t *testing.T) {
	fb := newFakeFacebook(t)
	session, err := NewFacebookSession(zaptest.NewLogger(t), fb.config())
	require.NoError(t, err)

	assert.True(t, session.Restore(authdata.Encode("u9", "tok9", time.Now().Add(-time.Hour))))

	_, ok := session.Session()
	assert.False(t, ok)
	assert.Equal(t, "u9", session.UserID())
}

func TestFacebookLoginWithoutExpiresInKeepsSession(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.noExpiry = true
	c, session := newFacebookCoordinator(t, fb)
	attempt, err := c.Start(context.Background(), StartConfig{Launcher: &capturingLauncher{}})
	require.NoError(t, err)

	c.ForwardPlatformResult(DefaultRequestCode, ResultOK, redirect(string(attempt.ID()), "code", testCode))

	outcome := waitOutcome(t, attempt)
	require.Equal(t, StateSucceeded, outcome.State, "err: %v", outcome.Err)
	cred, err := authdata.Decode(outcome.AuthData)
	require.NoError(t, err)
	assert.True(t, cred.Expiration.IsZero())

	require.True(t, session.Restore(outcome.AuthData))
	current, ok := session.Session()
	require.True(t, ok)
	assert.Equal(t, testToken, current.AccessToken)
}

func TestFacebookRestoreWithoutExpiration(t *testing.T) {
	fb := newFakeFacebook(t)
	session, err := NewFacebookSession(zaptest.NewLogger(t), fb.config())
	require.NoError(t, err)

	require.True(t, session.Restore(authdata.Encode("u9", "tok9", time.Time{})))

	cred, ok := session.Session()
	require.True(t, ok)
	assert.True(t, cred.Expiration.IsZero())
}

func TestFacebookStoreSessionSkipsSettledAttempt(t *testing.T) {
	fb := newFakeFacebook(t)
	session, err := NewFacebookSession(zaptest.NewLogger(t), fb.config())
	require.NoError(t, err)
	token := &oauth2.Token{AccessToken: "stale"}

	settled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, session.storeSession(&pendingFlow{ctx: settled, attempt: "a"}, token, "u1"))

	session.pending = &pendingFlow{ctx: context.Background(), attempt: "b"}
	assert.False(t, session.storeSession(&pendingFlow{ctx: context.Background(), attempt: "a"}, token, "u1"))

	_, ok := session.Session()
	assert.False(t, ok)

	session.pending = nil
	assert.True(t, session.storeSession(&pendingFlow{ctx: context.Background(), attempt: "a"}, token, "u1"))
	assert.Equal(t, "u1", session.UserID())
}
