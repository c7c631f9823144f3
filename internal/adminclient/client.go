// Package adminclient drives the approval workflow over the admin REST API:
// list views per kind, detail views with a bounded cache and the transition
// dispatcher that is the only mutator.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network error")
	// ErrSessionExpired is returned on HTTP 401; the operator must log in again.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrBusy is returned while a fetch or transition is already in flight.
	ErrBusy = errors.New("another request is in progress")
	// ErrTransitionNotAllowed is returned before any I/O for targets the
	// vocabulary does not offer from the current status.
	ErrTransitionNotAllowed = errors.New("transition not allowed from current status")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap maps 401 onto ErrSessionExpired.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	return nil
}

// Session holds the bearer token of the signed-in operator.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession wraps an existing token.
func NewSession(token string) *Session {
	return &Session{token: strings.TrimSpace(token)}
}

// Token returns the current token.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the token after a login.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	APIPrefix  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client speaks to the admin API on behalf of a session.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	logger  *zap.Logger
}

// New builds a client. APIPrefix defaults to /api.
func New(opts Options, session *Session) *Client {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if session == nil {
		session = NewSession("")
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/") + "/" + strings.Trim(opts.APIPrefix, "/"),
		http:    httpClient,
		session: session,
		logger:  opts.Logger,
	}
}

// Session returns the client's session.
func (c *Client) Session() *Session { return c.session }

// Login exchanges credentials for a token and stores it on the session.
func (c *Client) Login(ctx context.Context, email, password string) error {
	raw, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(unwrapData(raw), &payload); err != nil || payload.AccessToken == "" {
		return fmt.Errorf("login response carried no token")
	}
	c.session.SetToken(payload.AccessToken)
	return nil
}

// Get fetches path and returns the raw body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Send issues a mutating request with a JSON body.
func (c *Client) Send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	return c.do(ctx, method, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNetwork, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, raw)
		c.logger.Debug("admin api request failed",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.String("code", apiErr.Code))
		return nil, apiErr
	}
	return raw, nil
}

func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return apiErr
	}
	switch {
	case envelope.Error != nil:
		apiErr.Code = envelope.Error.Code
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
	case envelope.Message != "":
		apiErr.Message = envelope.Message
	}
	return apiErr
}
