package mockapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martinsuchenak/netpulse/internal/model"
)

var ErrDeviceNotFound = errors.New("device not found")

// deviceStore keeps devices in creation order.
type deviceStore struct {
	mu      sync.RWMutex
	order   []string
	devices map[string]model.Device
	now     func() time.Time
}

func newDeviceStore(now func() time.Time) *deviceStore {
	return &deviceStore{devices: make(map[string]model.Device), now: now}
}

func (s *deviceStore) list() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.devices[id])
	}
	return out
}

func (s *deviceStore) get(id string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return model.Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (s *deviceStore) create(in model.DeviceCreate) model.Device {
	now := s.now().UTC()
	d := model.Device{
		ID:         generateID(),
		Name:       in.Name,
		IPAddress:  in.IPAddress,
		DeviceType: in.DeviceType,
		Status:     model.DeviceStatusUnknown,
		Location:   in.Location,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.order = append(s.order, d.ID)
	s.devices[d.ID] = d
	s.mu.Unlock()
	return d
}

func (s *deviceStore) update(id string, in model.DeviceUpdate) (model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return model.Device{}, ErrDeviceNotFound
	}
	if in.Name != nil {
		d.Name = strings.TrimSpace(*in.Name)
	}
	if in.IPAddress != nil {
		d.IPAddress = *in.IPAddress
	}
	if in.DeviceType != nil {
		d.DeviceType = *in.DeviceType
	}
	if in.Location != nil {
		d.Location = *in.Location
	}
	now := s.now().UTC()
	if in.Status != nil {
		d.Status = *in.Status
		if d.Status == model.DeviceStatusOnline {
			d.LastSeen = &now
		}
	}
	d.UpdatedAt = now
	s.devices[id] = d
	return d, nil
}

func (s *deviceStore) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(s.devices, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
