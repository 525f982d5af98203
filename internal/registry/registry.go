package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/transport"
)

// DeviceAPI is the part of the REST client the registry needs.
type DeviceAPI interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// Registry is the client-side view of all devices.
//
// It combines full refreshes from the REST API with device_update push
// messages into one snapshot with at most one entry per device ID. Every
// write to the snapshot happens under one lock, in the order results arrive,
// so the last observation to arrive for an ID wins. Embedded timestamps are
// not compared.
//
// All public methods are thread-safe.
type Registry struct {
	api    DeviceAPI
	logger log.Logger

	mu   sync.RWMutex
	snap *snapshot

	onChange atomic.Pointer[func()]

	decodeFailures atomic.Uint64
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger for refreshes and dropped pushes.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry. Call Refresh to load it.
func New(api DeviceAPI, opts ...Option) *Registry {
	r := &Registry{
		api:    api,
		logger: log.Component("registry"),
		snap:   newSnapshot(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetOnChange registers fn to run after every snapshot change. fn runs on
// the goroutine that made the change, outside the registry lock.
func (r *Registry) SetOnChange(fn func()) {
	if fn == nil {
		r.onChange.Store(nil)
		return
	}
	r.onChange.Store(&fn)
}

func (r *Registry) changed() {
	if fn := r.onChange.Load(); fn != nil {
		(*fn)()
	}
}

// Refresh fetches the full device list and replaces the snapshot with it.
// Devices missing from the response are dropped. On error the snapshot is
// left as it was.
func (r *Registry) Refresh(ctx context.Context) error {
	r.logger.Debug("Refreshing devices")
	devices, err := r.api.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("refreshing devices: %w", err)
	}

	r.mu.Lock()
	r.snap.replace(withIDs(devices, r.logger))
	count := r.snap.len()
	r.mu.Unlock()

	r.logger.Info("Devices refreshed", "count", count)
	r.changed()
	return nil
}

// HandlePush applies one push message. It is a transport.Handler.
// Only device_update messages are applied; data may be one device or a list.
func (r *Registry) HandlePush(msg transport.Message) {
	if msg.Type != model.PushTypeDeviceUpdate {
		r.logger.Debug("Ignoring push message", "type", msg.Type)
		return
	}

	devices, err := decodeDevices(msg.Data)
	if err != nil {
		n := r.decodeFailures.Add(1)
		r.logger.Warn("Dropping undecodable device update", "error", err, "total", n)
		return
	}
	r.Upsert(devices...)
}

// Upsert inserts or fully overwrites each device by ID. New IDs are
// appended in argument order. Devices without an ID are skipped.
func (r *Registry) Upsert(devices ...model.Device) {
	devices = withIDs(devices, r.logger)
	if len(devices) == 0 {
		return
	}

	r.mu.Lock()
	for _, d := range devices {
		r.snap.upsert(d)
	}
	r.mu.Unlock()

	r.logger.Debug("Devices upserted", "count", len(devices))
	r.changed()
}

// Delete removes a device through the API and, on success, drops it from the
// snapshot right away. On failure the snapshot is untouched.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.api.DeleteDevice(ctx, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}

	r.mu.Lock()
	removed := r.snap.remove(id)
	r.mu.Unlock()

	r.logger.Info("Device deleted", "id", id, "was_listed", removed)
	if removed {
		r.changed()
	}
	return nil
}

// Search returns devices whose name or IP address contains term, ignoring
// case, in snapshot order. An empty term returns everything.
func (r *Registry) Search(term string) []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if term == "" {
		return r.snap.list(nil)
	}
	needle := strings.ToLower(term)
	return r.snap.list(func(d model.Device) bool {
		return strings.Contains(strings.ToLower(d.Name), needle) ||
			strings.Contains(strings.ToLower(d.IPAddress), needle)
	})
}

// Devices returns the whole snapshot in order.
func (r *Registry) Devices() []model.Device {
	return r.Search("")
}

// Get returns one device from the snapshot.
func (r *Registry) Get(id string) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.snap.get(id)
	if !ok {
		return model.Device{}, false
	}
	return copyDevice(d), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.len()
}

// DecodeFailures counts device_update payloads that could not be decoded.
func (r *Registry) DecodeFailures() uint64 {
	return r.decodeFailures.Load()
}

// decodeDevices accepts either a single device object or an array.
func decodeDevices(data json.RawMessage) ([]model.Device, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty device payload")
	}

	if trimmed[0] == '[' {
		var devices []model.Device
		if err := json.Unmarshal(trimmed, &devices); err != nil {
			return nil, err
		}
		return devices, nil
	}

	var d model.Device
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, err
	}
	return []model.Device{d}, nil
}

func withIDs(devices []model.Device, logger log.Logger) []model.Device {
	out := devices[:0:0]
	for _, d := range devices {
		if d.ID == "" {
			logger.Warn("Skipping device without id", "name", d.Name)
			continue
		}
		out = append(out, d)
	}
	return out
}
