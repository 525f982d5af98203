// Package command issues device mutations against the REST API.
//
// The issuer never touches a registry snapshot. Callers that keep one fold
// the returned record in themselves, or wait for the push channel.
package command

import (
	"context"
	"fmt"

	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
)

// ErrInvalidDevice is returned, wrapped, when input fails validation before
// any request is made.
var ErrInvalidDevice = model.ErrInvalidDevice

// DeviceAPI is the part of the REST client the issuer needs.
type DeviceAPI interface {
	CreateDevice(ctx context.Context, in model.DeviceCreate) (*model.Device, error)
	UpdateDevice(ctx context.Context, id string, in model.DeviceUpdate) (*model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	DeviceStatus(ctx context.Context, id string) (*model.DeviceStatusReport, error)
}

type Issuer struct {
	api    DeviceAPI
	logger log.Logger
}

type Option func(*Issuer)

// WithLogger sets the logger for issued commands.
func WithLogger(l log.Logger) Option {
	return func(i *Issuer) { i.logger = l }
}

func New(api DeviceAPI, opts ...Option) *Issuer {
	i := &Issuer{api: api, logger: log.Component("command")}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Create validates in and creates the device. An empty device type becomes
// router.
func (i *Issuer) Create(ctx context.Context, in model.DeviceCreate) (*model.Device, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		i.logger.Warn("Rejected device create", "name", in.Name, "error", err)
		return nil, err
	}

	i.logger.Debug("Creating device", "name", in.Name, "ip", in.IPAddress, "type", in.DeviceType)
	d, err := i.api.CreateDevice(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("creating device %q: %w", in.Name, err)
	}

	i.logger.Info("Device created", "id", d.ID, "name", d.Name)
	return d, nil
}

func (i *Issuer) Update(ctx context.Context, id string, in model.DeviceUpdate) (*model.Device, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		i.logger.Warn("Rejected device update", "id", id, "error", err)
		return nil, err
	}

	d, err := i.api.UpdateDevice(ctx, id, in)
	if err != nil {
		return nil, fmt.Errorf("updating device %s: %w", id, err)
	}

	i.logger.Info("Device updated", "id", d.ID, "name", d.Name)
	return d, nil
}

// Delete removes a device without touching any snapshot. Use
// registry.Registry.Delete when a view must drop it right away.
func (i *Issuer) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	if err := i.api.DeleteDevice(ctx, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	i.logger.Info("Device deleted", "id", id)
	return nil
}

func (i *Issuer) Get(ctx context.Context, id string) (*model.Device, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	d, err := i.api.GetDevice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return d, nil
}

func (i *Issuer) Status(ctx context.Context, id string) (*model.DeviceStatusReport, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	s, err := i.api.DeviceStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting status of device %s: %w", id, err)
	}
	return s, nil
}

func requireID(id string) error {
	if id == "" {
		return &model.ValidationError{Field: "id", Reason: "is required"}
	}
	return nil
}
