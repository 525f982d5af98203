package registry

import "github.com/martinsuchenak/netpulse/internal/model"

// snapshot is an insertion-ordered map of devices keyed by ID.
// It is not safe for concurrent use; Registry serializes access.
type snapshot struct {
	order []string
	byID  map[string]model.Device
}

func newSnapshot() *snapshot {
	return &snapshot{byID: make(map[string]model.Device)}
}

// replace discards everything and loads devices in the given order. A
// repeated ID keeps its first position and its last record.
func (s *snapshot) replace(devices []model.Device) {
	s.order = make([]string, 0, len(devices))
	s.byID = make(map[string]model.Device, len(devices))
	for _, d := range devices {
		s.upsert(d)
	}
}

// upsert overwrites the whole record for d.ID, appending new IDs.
func (s *snapshot) upsert(d model.Device) {
	if _, ok := s.byID[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.byID[d.ID] = d
}

func (s *snapshot) remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *snapshot) get(id string) (model.Device, bool) {
	d, ok := s.byID[id]
	return d, ok
}

func (s *snapshot) len() int {
	return len(s.order)
}

// list returns copies in order, keeping only those match accepts.
func (s *snapshot) list(match func(model.Device) bool) []model.Device {
	out := make([]model.Device, 0, len(s.order))
	for _, id := range s.order {
		d := s.byID[id]
		if match == nil || match(d) {
			out = append(out, copyDevice(d))
		}
	}
	return out
}

// copyDevice detaches the LastSeen pointer from the stored record.
func copyDevice(d model.Device) model.Device {
	if d.LastSeen != nil {
		ts := *d.LastSeen
		d.LastSeen = &ts
	}
	return d
}
