package model

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidDevice is matched by every ValidationError.
var ErrInvalidDevice = errors.New("invalid device")

// DefaultDeviceType is used when a create request leaves the type empty.
const DefaultDeviceType = DeviceTypeRouter

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDevice
}

// Normalize trims whitespace and applies the default device type.
func (c *DeviceCreate) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.IPAddress = strings.TrimSpace(c.IPAddress)
	c.Location = strings.TrimSpace(c.Location)
	if c.DeviceType == "" {
		c.DeviceType = DefaultDeviceType
	}
}

// Validate checks a normalized create request.
func (c DeviceCreate) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if err := validateIP(c.IPAddress); err != nil {
		return err
	}
	if _, err := ParseDeviceType(string(c.DeviceType)); err != nil {
		return &ValidationError{Field: "device_type", Reason: err.Error()}
	}
	return nil
}

// Validate checks the fields that are set on an update.
func (u DeviceUpdate) Validate() error {
	if u.IsEmpty() {
		return &ValidationError{Field: "update", Reason: "no fields to change"}
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if u.IPAddress != nil {
		if err := validateIP(*u.IPAddress); err != nil {
			return err
		}
	}
	if u.DeviceType != nil {
		if _, err := ParseDeviceType(string(*u.DeviceType)); err != nil {
			return &ValidationError{Field: "device_type", Reason: err.Error()}
		}
	}
	if u.Status != nil {
		switch *u.Status {
		case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusUnknown:
		default:
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *u.Status)}
		}
	}
	return nil
}

func validateIP(s string) error {
	if s == "" {
		return &ValidationError{Field: "ip_address", Reason: "is required"}
	}
	if net.ParseIP(s) == nil {
		return &ValidationError{Field: "ip_address", Reason: fmt.Sprintf("%q is not an IP address", s)}
	}
	return nil
}
