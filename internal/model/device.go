package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceType categorizes a network device.
type DeviceType string

const (
	DeviceTypeRouter      DeviceType = "router"
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeServer      DeviceType = "server"
	DeviceTypeFirewall    DeviceType = "firewall"
	DeviceTypeAccessPoint DeviceType = "access_point"
	DeviceTypeOther       DeviceType = "other"
)

// DeviceTypes lists the closed set of device types in display order.
var DeviceTypes = []DeviceType{
	DeviceTypeRouter,
	DeviceTypeSwitch,
	DeviceTypeServer,
	DeviceTypeFirewall,
	DeviceTypeAccessPoint,
	DeviceTypeOther,
}

// ParseDeviceType is strict: anything outside DeviceTypes is an error.
func ParseDeviceType(s string) (DeviceType, error) {
	for _, t := range DeviceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

// foldDeviceType maps anything outside DeviceTypes to DeviceTypeOther.
func foldDeviceType(t DeviceType) DeviceType {
	if parsed, err := ParseDeviceType(string(t)); err == nil {
		return parsed
	}
	return DeviceTypeOther
}

// DeviceStatus is the last reported reachability of a device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

func foldDeviceStatus(st DeviceStatus) DeviceStatus {
	switch st {
	case DeviceStatusOnline, DeviceStatusOffline:
		return st
	}
	return DeviceStatusUnknown
}

// Device represents a tracked device as returned by the device API
type Device struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	IPAddress  string       `json:"ip_address"`
	MACAddress string       `json:"mac_address,omitempty"`
	DeviceType DeviceType   `json:"device_type"`
	Status     DeviceStatus `json:"status"`
	LastSeen   *time.Time   `json:"last_seen"`
	Location   string       `json:"location,omitempty"`
	CreatedAt  time.Time    `json:"created_at,omitzero"`
	UpdatedAt  time.Time    `json:"updated_at,omitzero"`
}

// UnmarshalJSON decodes a device reported by the server, folding missing or
// unknown enum values instead of rejecting the record. Request bodies
// (DeviceCreate, DeviceUpdate) decode strictly and are checked by Validate.
func (d *Device) UnmarshalJSON(b []byte) error {
	type plain Device
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = Device(p)
	d.DeviceType = foldDeviceType(d.DeviceType)
	d.Status = foldDeviceStatus(d.Status)
	return nil
}

// DeviceCreate is the body of a device creation request
type DeviceCreate struct {
	Name       string     `json:"name"`
	IPAddress  string     `json:"ip_address"`
	DeviceType DeviceType `json:"device_type"`
	Location   string     `json:"location,omitempty"`
}

// DeviceUpdate carries only the fields being changed
type DeviceUpdate struct {
	Name       *string       `json:"name,omitempty"`
	IPAddress  *string       `json:"ip_address,omitempty"`
	DeviceType *DeviceType   `json:"device_type,omitempty"`
	Location   *string       `json:"location,omitempty"`
	Status     *DeviceStatus `json:"status,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u DeviceUpdate) IsEmpty() bool {
	return u.Name == nil && u.IPAddress == nil && u.DeviceType == nil && u.Location == nil && u.Status == nil
}

// DeviceStatusReport is the response of the device status endpoint
type DeviceStatusReport struct {
	DeviceID  string       `json:"device_id"`
	Status    DeviceStatus `json:"status"`
	LastSeen  *time.Time   `json:"last_seen"`
	IPAddress string       `json:"ip_address"`
}

func (r *DeviceStatusReport) UnmarshalJSON(b []byte) error {
	type plain DeviceStatusReport
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = DeviceStatusReport(p)
	r.Status = foldDeviceStatus(r.Status)
	return nil
}

// PushTypeDeviceUpdate is the push message type carrying device records.
const PushTypeDeviceUpdate = "device_update"
