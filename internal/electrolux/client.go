// Package electrolux is the client for the Electrolux appliance cloud API.
package electrolux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/logging"
)

const (
	DefaultBaseURL = "https://api.developer.electrolux.one"
	DefaultTimeout = 30 * time.Second

	refreshPath    = "/api/v1/token/refresh"
	appliancesPath = "/api/v1/appliances"
)

type route string

const (
	routeRefresh    route = "token_refresh"
	routeAppliances route = "appliances"
	routeInfo       route = "appliance_info"
	routeState      route = "appliance_state"
	routeCommand    route = "appliance_command"
)

// RefreshFunc durably stores a freshly minted token. The client does not use
// the token for another request until the function has returned nil.
type RefreshFunc func(ctx context.Context, token Token) error

// Config describes how to reach the API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Transport wraps outgoing requests, e.g. with the rate guard. Defaults to a pooled transport.
	Transport http.RoundTripper
}

// Client talks to the Electrolux REST API and keeps its token fresh.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	onRefresh  RefreshFunc
	now        func() time.Time

	refreshMu sync.Mutex

	tokenMu sync.RWMutex
	token   Token
	unsaved bool

	closeOnce sync.Once
}

type Option func(*Client)

// WithClock replaces the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient builds a client holding token. onRefresh may be nil.
func NewClient(cfg Config, token Token, onRefresh RefreshFunc, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport()
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		onRefresh:  onRefresh,
		now:        time.Now,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !token.Expiration.IsZero() {
		tokenExpiry.Set(float64(token.Expiration.Unix()))
	}
	return c, nil
}

// NewTransport returns the pooled transport the client uses by default.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.IdleConnTimeout = 30 * time.Second
	return t
}

// Token returns a copy of the currently held token.
func (c *Client) Token() Token {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
	})
}

// Appliances lists the appliances bound to the account.
func (c *Client) Appliances(ctx context.Context) ([]Appliance, error) {
	data, err := c.do(ctx, routeAppliances, http.MethodGet, appliancesPath, nil)
	if err != nil {
		return nil, err
	}
	return decodeAppliances(data)
}

// ApplianceInfo fetches the static description and capabilities of an appliance.
func (c *Client) ApplianceInfo(ctx context.Context, applianceID string) (*ApplianceInfo, error) {
	data, err := c.do(ctx, routeInfo, http.MethodGet, appliancePath(applianceID, "info"), nil)
	if err != nil {
		return nil, err
	}
	return decodeInfo(data)
}

// ApplianceState fetches the current reported state of an appliance.
func (c *Client) ApplianceState(ctx context.Context, applianceID string) (*ApplianceState, error) {
	data, err := c.do(ctx, routeState, http.MethodGet, appliancePath(applianceID, "state"), nil)
	if err != nil {
		return nil, err
	}
	return decodeState(data)
}

// SendCommand sends a sparse command. Any 2xx response is success.
func (c *Client) SendCommand(ctx context.Context, applianceID string, cmd Command) error {
	if len(cmd) == 0 {
		return errors.New("empty command")
	}
	_, err := c.do(ctx, routeCommand, http.MethodPut, appliancePath(applianceID, "command"), cmd)
	return err
}

// Refresh exchanges the refresh token for a new pair regardless of expiry.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func appliancePath(applianceID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", appliancesPath, url.PathEscape(applianceID), suffix)
}

func (c *Client) do(ctx context.Context, r route, method, path string, body any) ([]byte, error) {
	if r != routeRefresh {
		if err := c.ensureFresh(ctx); err != nil {
			apiRequests.WithLabelValues(string(r), "aborted").Inc()
			return nil, &RequestError{Method: method, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r != routeRefresh {
		c.Token().setAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(string(r), "error").Inc()
		return nil, &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiRequests.WithLabelValues(string(r), "error").Inc()
		return nil, &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read response body")}
	}
	apiRequests.WithLabelValues(string(r), fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}

// ensureFresh refreshes an expired token, or retries saving a refreshed one,
// before a request may use it.
func (c *Client) ensureFresh(ctx context.Context) error {
	if !c.needsWork() {
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another request may have finished the work while we waited
	if !c.needsWork() {
		return nil
	}

	c.tokenMu.RLock()
	token, unsaved := c.token, c.unsaved
	c.tokenMu.RUnlock()

	if unsaved && !token.Expired(c.now()) {
		if err := c.persist(ctx, token); err != nil {
			return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		return nil
	}

	logging.Logger(ctx).WithField("expires", token.Expiration.Format(time.RFC3339)).Info("access token expired, refreshing")
	if err := c.refreshLocked(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return nil
}

func (c *Client) needsWork() bool {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.unsaved || c.token.Expired(c.now())
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    float64 `json:"expiresIn"`
}

// refreshLocked must be called with refreshMu held.
func (c *Client) refreshLocked(ctx context.Context) error {
	current := c.Token()
	if current.RefreshToken == "" {
		refreshFailure.Inc()
		return errors.New("no refresh token available")
	}

	data, err := c.do(ctx, routeRefresh, http.MethodPost, refreshPath, refreshRequest{RefreshToken: current.RefreshToken})
	if err != nil {
		refreshFailure.Inc()
		logging.Logger(ctx).WithError(err).Error("token refresh failed")
		return err
	}

	var resp refreshResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		refreshFailure.Inc()
		return errors.Wrap(err, "decode refresh response")
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn <= 0 {
		refreshFailure.Inc()
		return errors.New("refresh response missing accessToken, refreshToken or expiresIn")
	}

	next := Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiration:   c.now().Add(time.Duration(resp.ExpiresIn * float64(time.Second))),
	}
	// the old refresh token is spent once the server answered, so hold the
	// new pair even if saving it fails below
	c.tokenMu.Lock()
	c.token = next
	c.unsaved = true
	c.tokenMu.Unlock()
	tokenExpiry.Set(float64(next.Expiration.Unix()))

	if err := c.persist(ctx, next); err != nil {
		return err
	}
	refreshSuccess.Inc()
	logging.Logger(ctx).WithField("expires", next.Expiration.Format(time.RFC3339)).Info("access token refreshed")
	return nil
}

func (c *Client) persist(ctx context.Context, token Token) error {
	if c.onRefresh != nil {
		if err := c.onRefresh(ctx, token); err != nil {
			persistFailure.Inc()
			logging.Logger(ctx).WithError(err).Error("failed to persist refreshed token")
			return errors.Wrap(err, "persist refreshed token")
		}
	}
	c.tokenMu.Lock()
	c.unsaved = false
	c.tokenMu.Unlock()
	return nil
}
