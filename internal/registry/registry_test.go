package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinsuchenak/netpulse/internal/client"
	"github.com/martinsuchenak/netpulse/internal/log"
	"github.com/martinsuchenak/netpulse/internal/model"
	"github.com/martinsuchenak/netpulse/internal/transport"
)

type stubAPI struct {
	mu        sync.Mutex
	devices   []model.Device
	listErr   error
	deleteErr error
	deleted   []string
}

func (s *stubAPI) ListDevices(ctx context.Context) ([]model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Device(nil), s.devices...), nil
}

func (s *stubAPI) DeleteDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func newTestRegistry(api DeviceAPI) *Registry {
	return New(api, WithLogger(log.Nop{}))
}

func dev(id, name, ip string, status model.DeviceStatus) model.Device {
	return model.Device{
		ID:         id,
		Name:       name,
		IPAddress:  ip,
		DeviceType: model.DeviceTypeRouter,
		Status:     status,
	}
}

func push(t *testing.T, data any) transport.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return transport.Message{Type: model.PushTypeDeviceUpdate, Data: raw}
}

func ids(devices []model.Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.ID
	}
	return out
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	api := &stubAPI{devices: []model.Device{
		dev("a", "core-router", "10.0.0.1", model.DeviceStatusOnline),
		dev("b", "edge-switch", "10.0.0.2", model.DeviceStatusOffline),
		dev("c", "backup", "10.0.0.3", model.DeviceStatusUnknown),
	}}
	r := newTestRegistry(api)
	ctx := context.Background()

	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Devices()))

	api.devices = []model.Device{
		dev("c", "backup", "10.0.0.3", model.DeviceStatusOnline),
		dev("a", "core-router", "10.0.0.1", model.DeviceStatusOnline),
	}
	require.NoError(t, r.Refresh(ctx))

	assert.Equal(t, []string{"c", "a"}, ids(r.Devices()))
	_, ok := r.Get("b")
	assert.False(t, ok, "device missing from refresh must be dropped")
	got, _ := r.Get("c")
	assert.Equal(t, model.DeviceStatusOnline, got.Status)
}

func TestRefreshDropsPushedDevicesNotInResponse(t *testing.T) {
	api := &stubAPI{devices: []model.Device{dev("a", "a", "10.0.0.1", model.DeviceStatusOnline)}}
	r := newTestRegistry(api)

	r.HandlePush(push(t, dev("x", "pushed", "10.0.0.9", model.DeviceStatusOnline)))
	require.Equal(t, 1, r.Len())

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{"a"}, ids(r.Devices()))
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	api := &stubAPI{devices: []model.Device{dev("a", "a", "10.0.0.1", model.DeviceStatusOnline)}}
	r := newTestRegistry(api)
	require.NoError(t, r.Refresh(context.Background()))

	api.listErr = &client.RequestError{Method: http.MethodGet, Path: "/devices/", Status: http.StatusInternalServerError}
	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrRequest)
	assert.Equal(t, 1, r.Len())
}

func TestRefreshAgainstServerMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, client.ErrAuthentication},
		{"server error", http.StatusInternalServerError, client.ErrRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"detail":"nope"}`)
			}))
			defer srv.Close()

			api := client.New(srv.URL, client.WithCredentials(staticToken("tok")))
			r := newTestRegistry(api)
			r.Upsert(dev("a", "a", "10.0.0.1", model.DeviceStatusOnline))

			err := r.Refresh(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, r.Len())
		})
	}
}

func TestPushOverwritesWholeRecord(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	old := dev("A", "old-name", "10.0.0.1", model.DeviceStatusOffline)
	old.MACAddress = "aa:bb:cc:dd:ee:ff"
	old.Location = "rack 4"
	r.Upsert(old)

	r.HandlePush(transport.Message{
		Type: model.PushTypeDeviceUpdate,
		Data: json.RawMessage(`{"id":"A","status":"online"}`),
	})

	got, ok := r.Get("A")
	require.True(t, ok)
	assert.Equal(t, model.DeviceStatusOnline, got.Status)
	assert.Empty(t, got.Name, "fields absent from the push are not merged from the old record")
	assert.Empty(t, got.IPAddress)
	assert.Empty(t, got.MACAddress)
	assert.Empty(t, got.Location)
	assert.Equal(t, model.DeviceTypeOther, got.DeviceType)
	assert.Equal(t, 1, r.Len())
}

func TestPushAcceptsArrayAndAppendsNewIDs(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	r.Upsert(dev("a", "a", "10.0.0.1", model.DeviceStatusOnline))

	r.HandlePush(push(t, []model.Device{
		dev("b", "b", "10.0.0.2", model.DeviceStatusOnline),
		dev("a", "a2", "10.0.0.1", model.DeviceStatusOffline),
		dev("c", "c", "10.0.0.3", model.DeviceStatusOnline),
	}))

	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Devices()))
	got, _ := r.Get("a")
	assert.Equal(t, "a2", got.Name)
}

func TestPushIgnoresOtherTypes(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	r.HandlePush(transport.Message{Type: "alert", Data: json.RawMessage(`{"id":"a"}`)})
	assert.Zero(t, r.Len())
	assert.Zero(t, r.DecodeFailures())
}

func TestPushDecodeFailuresAreCounted(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	r.Upsert(dev("a", "a", "10.0.0.1", model.DeviceStatusOnline))

	for _, data := range []string{`"text"`, `{"id":`, ``, `null`, `42`} {
		r.HandlePush(transport.Message{Type: model.PushTypeDeviceUpdate, Data: json.RawMessage(data)})
	}

	assert.Equal(t, uint64(5), r.DecodeFailures())
	assert.Equal(t, []string{"a"}, ids(r.Devices()))
}

func TestPushSkipsDevicesWithoutID(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	r.HandlePush(push(t, []model.Device{
		dev("", "anonymous", "10.0.0.1", model.DeviceStatusOnline),
		dev("b", "b", "10.0.0.2", model.DeviceStatusOnline),
	}))
	assert.Equal(t, []string{"b"}, ids(r.Devices()))
}

func TestLastWriteWinsByArrival(t *testing.T) {
	api := &stubAPI{}
	r := newTestRegistry(api)
	ctx := context.Background()

	type step struct {
		refresh []model.Device
		push    []model.Device
	}
	steps := []step{
		{push: []model.Device{dev("a", "a1", "10.0.0.1", model.DeviceStatusOnline)}},
		{refresh: []model.Device{
			dev("a", "a2", "10.0.0.1", model.DeviceStatusOffline),
			dev("b", "b1", "10.0.0.2", model.DeviceStatusOnline),
		}},
		{push: []model.Device{dev("b", "b2", "10.0.0.2", model.DeviceStatusOffline)}},
		{push: []model.Device{dev("c", "c1", "10.0.0.3", model.DeviceStatusOnline)}},
		{push: []model.Device{dev("a", "a3", "10.0.0.1", model.DeviceStatusOnline)}},
		{push: []model.Device{dev("c", "c2", "10.0.0.33", model.DeviceStatusOffline)}},
	}

	for _, s := range steps {
		if s.refresh != nil {
			api.devices = s.refresh
			require.NoError(t, r.Refresh(ctx))
			continue
		}
		r.HandlePush(push(t, s.push))
	}

	want := map[string]string{"a": "a3", "b": "b2", "c": "c2"}
	devices := r.Devices()
	require.Len(t, devices, len(want))
	for _, d := range devices {
		assert.Equal(t, want[d.ID], d.Name, d.ID)
	}
	c, _ := r.Get("c")
	assert.Equal(t, "10.0.0.33", c.IPAddress)
	assert.Equal(t, model.DeviceStatusOffline, c.Status)
}

func TestConcurrentPushesKeepOneEntryPerID(t *testing.T) {
	r := newTestRegistry(&stubAPI{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("d%d", i%10)
				r.Upsert(dev(id, fmt.Sprintf("w%d-%d", w, i), "10.0.0.1", model.DeviceStatusOnline))
				_ = r.Search("w")
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	seen := map[string]bool{}
	for _, d := range r.Devices() {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestDeleteRemovesImmediately(t *testing.T) {
	api := &stubAPI{devices: []model.Device{
		dev("x", "x", "10.0.0.1", model.DeviceStatusOnline),
		dev("y", "y", "10.0.0.2", model.DeviceStatusOnline),
	}}
	r := newTestRegistry(api)
	require.NoError(t, r.Refresh(context.Background()))

	require.NoError(t, r.Delete(context.Background(), "x"))

	assert.Equal(t, []string{"y"}, ids(r.Devices()))
	assert.Equal(t, []string{"x"}, api.deleted)
}

func TestDeleteFailureLeavesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestRegistry(client.New(srv.URL, client.WithCredentials(staticToken("tok"))))
	x := dev("x", "x", "10.0.0.1", model.DeviceStatusOnline)
	r.Upsert(x)

	err := r.Delete(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrRequest)

	got, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, x, got)
}

func TestDeleteUnknownIDStillSucceeds(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	changes := 0
	r.SetOnChange(func() { changes++ })

	require.NoError(t, r.Delete(context.Background(), "ghost"))
	assert.Zero(t, changes)
}

func TestSearch(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	r.Upsert(
		dev("1", "Core-Router", "10.0.0.1", model.DeviceStatusOnline),
		dev("2", "edge-switch", "192.168.1.20", model.DeviceStatusOnline),
		dev("3", "Backup Server", "10.0.1.5", model.DeviceStatusOffline),
	)

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"1", "2", "3"}},
		{"router", []string{"1"}},
		{"ROUTER", []string{"1"}},
		{"10.0", []string{"1", "3"}},
		{"192.168", []string{"2"}},
		{"e", []string{"1", "2", "3"}},
		{"nothing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			first := r.Search(tt.term)
			assert.Equal(t, tt.want, ids(first))
			assert.Equal(t, first, r.Search(tt.term))
		})
	}
}

func TestReturnedDevicesAreCopies(t *testing.T) {
	r := newTestRegistry(&stubAPI{})
	d := dev("a", "a", "10.0.0.1", model.DeviceStatusOnline)
	r.Upsert(d)

	list := r.Devices()
	list[0].Name = "mutated"

	got, _ := r.Get("a")
	assert.Equal(t, "a", got.Name)
}

func TestOnChangeFires(t *testing.T) {
	api := &stubAPI{devices: []model.Device{dev("a", "a", "10.0.0.1", model.DeviceStatusOnline)}}
	r := newTestRegistry(api)

	changes := 0
	r.SetOnChange(func() { changes++ })

	require.NoError(t, r.Refresh(context.Background()))
	r.HandlePush(push(t, dev("b", "b", "10.0.0.2", model.DeviceStatusOnline)))
	require.NoError(t, r.Delete(context.Background(), "a"))
	r.HandlePush(transport.Message{Type: model.PushTypeDeviceUpdate, Data: json.RawMessage(`bad`)})

	assert.Equal(t, 3, changes)

	r.SetOnChange(nil)
	r.Upsert(dev("c", "c", "10.0.0.3", model.DeviceStatusOnline))
	assert.Equal(t, 3, changes)
}

func TestDeleteWrapsAPIError(t *testing.T) {
	sentinel := errors.New("boom")
	r := newTestRegistry(&stubAPI{deleteErr: sentinel})
	r.Upsert(dev("a", "a", "10.0.0.1", model.DeviceStatusOnline))

	err := r.Delete(context.Background(), "a")
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, r.Len())
}

type staticToken string

func (s staticToken) BearerToken() (string, error) { return string(s), nil }
func (s staticToken) Invalidate()                  {}
