// Package mockapi is an in-memory stand-in for the NetPulse REST API and its
// push channel. It backs the client tests and `netpulse mock-server`.
package mockapi

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
)

const (
	DefaultAPIPrefix = "/api/v1"
	DefaultWSPath    = "/ws"
	DefaultTokenTTL  = 30 * time.Minute
)

type Server struct {
	prefix string
	wsPath string
	logger log.Logger
	now    func() time.Time

	auth    *authority
	devices *deviceStore
	hub     *Hub

	failMu   sync.Mutex
	failures map[string][]int

	handler http.Handler
}

type Option func(*options)

type options struct {
	prefix    string
	wsPath    string
	secret    []byte
	tokenTTL  time.Duration
	heartbeat time.Duration
	keepalive time.Duration
	now       func() time.Time
	logger    log.Logger
}

func WithPrefix(p string) Option { return func(o *options) { o.prefix = p } }

// WithSecret fixes the HS256 signing key. A random key is used otherwise.
func WithSecret(secret []byte) Option { return func(o *options) { o.secret = secret } }

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option { return func(o *options) { o.tokenTTL = d } }

// WithHeartbeat makes every websocket client receive a heartbeat message at
// this interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option { return func(o *options) { o.heartbeat = d } }

// WithKeepalive sends a bare "ping" text frame at this interval, the way the
// production service does. Zero disables it.
func WithKeepalive(d time.Duration) Option { return func(o *options) { o.keepalive = d } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithLogger(l log.Logger) Option { return func(o *options) { o.logger = l } }

func New(opts ...Option) *Server {
	o := options{
		prefix:   DefaultAPIPrefix,
		wsPath:   DefaultWSPath,
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
		logger:   log.Component("mockapi"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		prefix:   o.prefix,
		wsPath:   o.wsPath,
		logger:   o.logger,
		now:      o.now,
		auth:     newAuthority(o.secret, o.tokenTTL, o.now),
		devices:  newDeviceStore(o.now),
		hub:      newHub(o.heartbeat, o.keepalive, o.logger),
		failures: make(map[string][]int),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var h http.Handler = mux
	h = s.failureInjector(h)
	h = s.requestLogger(h)
	h = securityHeaders(h)
	s.handler = h
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Hub() *Hub { return s.hub }

// AddUser registers an account that can log in.
func (s *Server) AddUser(email, password, fullName string) model.User {
	return s.auth.addUser(email, password, fullName)
}

// IssueToken signs a token for an existing account without a login request.
func (s *Server) IssueToken(email string) (string, error) {
	return s.auth.issue(email)
}

// AddDevice stores a device and broadcasts it, like a create request would.
func (s *Server) AddDevice(in model.DeviceCreate) model.Device {
	in.Normalize()
	d := s.devices.create(in)
	s.hub.BroadcastDevices(d)
	return d
}

// AddDeviceQuietly stores a device without pushing it to clients.
func (s *Server) AddDeviceQuietly(in model.DeviceCreate) model.Device {
	in.Normalize()
	return s.devices.create(in)
}

func (s *Server) Devices() []model.Device {
	return s.devices.list()
}

// SetStatus changes a device's status and pushes the full record.
func (s *Server) SetStatus(id string, status model.DeviceStatus) (model.Device, error) {
	d, err := s.devices.update(id, model.DeviceUpdate{Status: &status})
	if err != nil {
		return model.Device{}, err
	}
	s.hub.BroadcastDevices(d)
	return d, nil
}

// FailNext makes the next request with this method fail with status.
// Calls queue up.
func (s *Server) FailNext(method string, status int) {
	s.failMu.Lock()
	s.failures[method] = append(s.failures[method], status)
	s.failMu.Unlock()
}

func (s *Server) takeFailure(method string) (int, bool) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	q := s.failures[method]
	if len(q) == 0 {
		return 0, false
	}
	s.failures[method] = q[1:]
	return q[0], true
}

// DropConnections cuts every push client without a close handshake.
func (s *Server) DropConnections() {
	s.logger.Info("Dropping websocket clients", "clients", s.hub.ClientCount())
	s.hub.DropConnections()
}

// Close sends a going-away close frame to every push client.
func (s *Server) Close() {
	s.hub.closeAll()
}

// Simulate flips the status of a random device every interval until ctx is
// done, so a watching client sees live updates.
func (s *Server) Simulate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			devices := s.devices.list()
			if len(devices) == 0 {
				continue
			}
			d := devices[rand.IntN(len(devices))]
			next := model.DeviceStatusOnline
			if d.Status == model.DeviceStatusOnline {
				next = model.DeviceStatusOffline
			}
			if _, err := s.SetStatus(d.ID, next); err == nil {
				s.logger.Info("Simulated status change", "id", d.ID, "name", d.Name, "status", next)
			}
		}
	}
}
