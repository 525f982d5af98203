package client

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
	"time"

	"github.com/google/uuid"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
)

const (
	// DefaultTimeout bounds every request unless WithTimeout overrides it.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is read for its detail.
	maxErrorBody = 64 << 10
)

// Credentials supplies the bearer token for authenticated calls.
type Credentials interface {
	// BearerToken returns the token to send, or an error wrapping
	// ErrAuthentication if there is no usable token.
	BearerToken() (string, error)
	// Invalidate is called after the server rejects the token.
	Invalidate()
}

// Client talks to the NetPulse REST API
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	creds   Credentials
	logger  log.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the zero-value http.Client used by default.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request deadline. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCredentials attaches the bearer source used by authenticated requests.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithLogger sets the request logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL (e.g. http://host:8000/api/v1)
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  log.Component("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCredentials returns a copy of c that authenticates with creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// BaseURL returns the API root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

// do performs one request and decodes a 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return &RequestError{Method: r.method, Path: r.path, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.auth {
		if c.creds == nil {
			return fmt.Errorf("%s %s: %w: no session", r.method, r.path, ErrAuthentication)
		}
		token, err := c.creds.BearerToken()
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("Sending request", "method", r.method, "path", r.path, "request_id", requestID)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Failed to connect to server", "method", r.method, "path", r.path, "error", err)
		return &RequestError{Method: r.method, Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{
			Method: r.method,
			Path:   r.path,
			Status: resp.StatusCode,
			Detail: readDetail(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("Server rejected credentials", "method", r.method, "path", r.path)
			if r.auth && c.creds != nil {
				c.creds.Invalidate()
			}
		} else {
			c.logger.Error("Server returned error", "method", r.method, "path", r.path, "status", resp.StatusCode, "detail", reqErr.Detail)
		}
		return reqErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Failed to decode response", "method", r.method, "path", r.path, "error", err)
		return &RequestError{
			Method: r.method,
			Path:   r.path,
			Err:    fmt.Errorf("%w: %w", ErrDecode, err),
		}
	}
	return nil
}

// readDetail extracts {detail} or {error} from an error body, empty if the
// body is not a decodable error object.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var eb model.ErrorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	return eb.Message()
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// IssueToken exchanges credentials for a token (unauthenticated, form encoded)
func (c *Client) IssueToken(ctx context.Context, username, password string) (*model.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok model.TokenResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &RequestError{Method: http.MethodPost, Path: "/auth/token", Err: fmt.Errorf("%w: empty access_token", ErrDecode)}
	}
	return &tok, nil
}

// CurrentUser returns the principal for the current credentials
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", auth: true}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListDevices returns the full device collection in server order
func (c *Client) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := c.do(ctx, request{method: http.MethodGet, path: "/devices/", auth: true}, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var d model.Device
	if err := c.do(ctx, request{method: http.MethodGet, path: devicePath(id), auth: true}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) CreateDevice(ctx context.Context, in model.DeviceCreate) (*model.Device, error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, fmt.Errorf("encoding device: %w", err)
	}
	var d model.Device
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/devices/",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) UpdateDevice(ctx context.Context, id string, in model.DeviceUpdate) (*model.Device, error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, fmt.Errorf("encoding device update: %w", err)
	}
	var d model.Device
	err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        devicePath(id),
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDevice removes one device. Any 2xx counts as success, body or not.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: devicePath(id), auth: true}, nil)
}

func (c *Client) DeviceStatus(ctx context.Context, id string) (*model.DeviceStatusReport, error) {
	var s model.DeviceStatusReport
	if err := c.do(ctx, request{method: http.MethodGet, path: devicePath(id) + "/status", auth: true}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func devicePath(id string) string {
	return "/devices/" + url.PathEscape(id)
}

// IsAuthError reports whether err should send the operator back to login.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
