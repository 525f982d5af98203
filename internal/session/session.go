package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/martinsuchenak/netpulse/internal/client"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/storage"
)

// ErrLoginFailed is returned when the token endpoint rejects a login without
// a readable reason, or cannot be reached.
var ErrLoginFailed = errors.New("login failed")

// Session holds one operator's bearer token and principal.
//
// A Session is passed explicitly to everything that authenticates; there is
// no process-wide instance. All methods are safe for concurrent use.
type Session struct {
	store  storage.TokenStore
	api    *client.Client
	now    func() time.Time
	logger log.Logger

	// mu serializes token writes and guards user.
	mu   sync.Mutex
	user *model.User
}

// Option configures a Session
type Option func(*Session)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the logger for login and token events.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session over store. api is used unauthenticated for login
// and is the base for Client().
func New(store storage.TokenStore, api *client.Client, opts ...Option) *Session {
	s := &Session{
		store:  store,
		api:    api,
		now:    time.Now,
		logger: log.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns a REST client authenticated by this session.
func (s *Session) Client() *client.Client {
	return s.api.WithCredentials(s)
}

// Token returns the stored token, if any. A storage failure reads as absent.
func (s *Session) Token() (string, bool) {
	tok, ok, err := s.store.Get(storage.KeyAccessToken)
	if err != nil {
		s.logger.Error("Failed to read stored token", "error", err)
		return "", false
	}
	return tok, ok && tok != ""
}

// SetToken persists token, replacing any previous one.
func (s *Session) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(storage.KeyAccessToken, token)
}

// RemoveToken clears the persisted token.
func (s *Session) RemoveToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(storage.KeyAccessToken)
}

// IsValid reports whether a token is present and its exp claim is strictly
// in the future. It is evaluated on every call.
func (s *Session) IsValid() bool {
	tok, ok := s.Token()
	if !ok {
		return false
	}
	return validAt(tok, s.now())
}

// BearerToken implements client.Credentials.
func (s *Session) BearerToken() (string, error) {
	tok, ok := s.Token()
	if !ok {
		return "", fmt.Errorf("%w: not logged in", client.ErrAuthentication)
	}
	if !validAt(tok, s.now()) {
		return "", fmt.Errorf("%w: session token expired or malformed", client.ErrAuthentication)
	}
	return tok, nil
}

// Invalidate implements client.Credentials: the server rejected the token,
// so it and the principal are dropped.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	if err := s.store.Delete(storage.KeyAccessToken); err != nil {
		s.logger.Error("Failed to clear rejected token", "error", err)
		return
	}
	s.logger.Info("Session invalidated")
}

// Login exchanges identifier and secret for a token, stores it and returns
// the principal it belongs to.
func (s *Session) Login(ctx context.Context, identifier, secret string) (*model.User, error) {
	s.logger.Debug("Logging in", "username", identifier)

	tok, err := s.api.IssueToken(ctx, identifier, secret)
	if err != nil {
		var reqErr *client.RequestError
		if errors.As(err, &reqErr) && reqErr.Status != 0 && reqErr.Detail != "" {
			s.logger.Warn("Login rejected", "username", identifier, "status", reqErr.Status)
			return nil, fmt.Errorf("%w: %s", client.ErrAuthentication, reqErr.Detail)
		}
		s.logger.Error("Login failed", "username", identifier, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	user, err := s.api.WithCredentials(bearer(tok.AccessToken)).CurrentUser(ctx)
	if err != nil {
		s.logger.Error("Failed to load user after login", "username", identifier, "error", err)
		return nil, fmt.Errorf("%w: loading user: %w", ErrLoginFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(storage.KeyAccessToken, tok.AccessToken); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	s.user = user

	s.logger.Info("Logged in", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Logout clears the token and the in-memory principal.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	if err := s.store.Delete(storage.KeyAccessToken); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

// User returns the principal from the last login or CurrentUser call.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// CurrentUser returns the cached principal, fetching it when the session
// was restored from storage. A rejected token clears the session.
func (s *Session) CurrentUser(ctx context.Context) (*model.User, error) {
	if u := s.User(); u != nil && s.IsValid() {
		return u, nil
	}

	user, err := s.Client().CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	u := *user
	return &u, nil
}

// bearer is a fixed token used between receiving it and storing it.
type bearer string

func (b bearer) BearerToken() (string, error) { return string(b), nil }
func (b bearer) Invalidate()                  {}
