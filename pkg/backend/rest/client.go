// Package rest implements backend.Backend against a Parse-compatible REST API.
package rest

import (
	"bytes"
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

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
	"github.com/Suhaibinator/GOAuthBridge/pkg/backend"
)

const (
	headerApplicationID = "X-Parse-Application-Id"
	headerRESTAPIKey    = "X-Parse-REST-API-Key"
	headerSessionToken  = "X-Parse-Session-Token"
	headerMasterKey     = "X-Parse-Master-Key"

	// codeObjectNotFound is the Parse error code for a missing object.
	codeObjectNotFound = 101
)

// Config configures the REST backend client.
type Config struct {
	ServerURL     string        `env:"PARSE_SERVER_URL"`
	ApplicationID string        `env:"PARSE_APPLICATION_ID"`
	RESTAPIKey    string        `env:"PARSE_REST_API_KEY"`
	MasterKey     string        `env:"PARSE_MASTER_KEY"`
	RetryMax      int           `env:"PARSE_RETRY_MAX" envDefault:"3"`
	RetryWaitMin  time.Duration `env:"PARSE_RETRY_WAIT_MIN" envDefault:"200ms"`
	RetryWaitMax  time.Duration `env:"PARSE_RETRY_WAIT_MAX" envDefault:"2s"`
	Timeout       time.Duration `env:"PARSE_TIMEOUT" envDefault:"10s"`
}

// LoadConfigFromEnv reads the client configuration from PARSE_* variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse rest backend config: %w", err)
	}
	return cfg, nil
}

// APIError is an error response returned by the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parse api error: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the /users endpoint of a Parse server.
type Client struct {
	logger  *zap.Logger
	cfg     Config
	baseURL string
	http    *retryablehttp.Client

	mu       sync.Mutex
	sessions map[string]string // user id -> session token
}

var _ backend.Backend = (*Client)(nil)

// New creates a client for cfg.ServerURL.
func New(logger *zap.Logger, cfg Config) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("parse server url is required")
	}
	if cfg.ApplicationID == "" {
		return nil, errors.New("parse application id is required")
	}
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = leveledLogger{logger.Sugar()}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		logger:   logger,
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		http:     rc,
		sessions: make(map[string]string),
	}, nil
}

type userBody struct {
	AuthData map[string]authdata.AuthData `json:"authData"`
}

// LogInWith signs up or logs in the user owning data. The server answers 201 for a new user.
func (c *Client) LogInWith(ctx context.Context, authType string, data authdata.AuthData) (*backend.User, error) {
	if _, err := authdata.Decode(data); err != nil {
		return nil, err
	}

	var user backend.User
	status, err := c.do(ctx, http.MethodPost, "/users", "", userBody{
		AuthData: map[string]authdata.AuthData{authType: data},
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("parse api: login response has no objectId")
	}
	user.IsNew = status == http.StatusCreated
	if user.AuthData == nil {
		user.AuthData = map[string]authdata.AuthData{}
	}
	user.AuthData[authType] = data.Clone()

	c.rememberSession(user.ID, user.SessionToken)
	c.logger.Debug("Logged in with auth data",
		zap.String("user_id", user.ID),
		zap.String("auth_type", authType),
		zap.Bool("is_new", user.IsNew),
	)
	return &user, nil
}

// LinkWith writes data under authType on the user. A nil data unlinks.
func (c *Client) LinkWith(ctx context.Context, userID, authType string, data authdata.AuthData) error {
	if !authdata.IsUnlink(data) {
		if _, err := authdata.Decode(data); err != nil {
			return err
		}
	}
	_, err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), c.session(userID), userBody{
		AuthData: map[string]authdata.AuthData{authType: data},
	}, nil)
	return err
}

// UnlinkFrom clears the authType entry on the user.
func (c *Client) UnlinkFrom(ctx context.Context, userID, authType string) error {
	return c.LinkWith(ctx, userID, authType, nil)
}

// IsLinked fetches the user and reports whether authType is present.
func (c *Client) IsLinked(ctx context.Context, userID, authType string) (bool, error) {
	user, err := c.User(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsLinked(authType), nil
}

// User fetches a user by id.
func (c *Client) User(ctx context.Context, userID string) (*backend.User, error) {
	var user backend.User
	if _, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), c.session(userID), nil, &user); err != nil {
		return nil, err
	}
	if user.SessionToken != "" {
		c.rememberSession(user.ID, user.SessionToken)
	} else {
		user.SessionToken = c.session(userID)
	}
	return &user, nil
}

func (c *Client) rememberSession(userID, token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.sessions[userID] = token
	c.mu.Unlock()
}

func (c *Client) session(userID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[userID]
}

func (c *Client) do(ctx context.Context, method, path, sessionToken string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(headerApplicationID, c.cfg.ApplicationID)
	if c.cfg.RESTAPIKey != "" {
		req.Header.Set(headerRESTAPIKey, c.cfg.RESTAPIKey)
	}
	if c.cfg.MasterKey != "" {
		req.Header.Set(headerMasterKey, c.cfg.MasterKey)
	}
	if sessionToken != "" {
		req.Header.Set(headerSessionToken, sessionToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if resp.StatusCode == http.StatusNotFound || apiErr.Code == codeObjectNotFound {
			return resp.StatusCode, fmt.Errorf("%w: %w", backend.ErrUserNotFound, apiErr)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// leveledLogger routes retryablehttp logging through zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
func (l leveledLogger) Info(msg string, keysAndValues ...interface{})  { l.s.Infow(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
