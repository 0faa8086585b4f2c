package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
)

type fakeDirectory struct {
	mu          sync.Mutex
	fetchCalls  int
	updateCalls int

	devices   map[string]*models.Device
	updateErr error
}

func (f *fakeDirectory) FetchDevice(ctx context.Context, id string) *models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	d, ok := f.devices[id]
	if !ok {
		return nil
	}
	return d.Clone()
}

func (f *fakeDirectory) UpdateDevice(ctx context.Context, id string, req models.DeviceUpdateRequest) (*models.UpdateDeviceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.UpdateDeviceResponse{}, nil
}

func (f *fakeDirectory) counts() (fetch, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.updateCalls
}

func newTestStore(t *testing.T, dir *fakeDirectory, timeout time.Duration) *Store {
	t.Helper()

	s := NewStore(dir, WithReconcileTimeout(timeout))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return s
}

func seed(s *Store, devices ...*models.Device) {
	s.do(func() {
		s.devices = devices
	})
}

func lockDevice(id, thing string) *models.Device {
	return &models.Device{
		ID:           id,
		DeviceType:   models.DeviceTypeLock,
		IoTThingName: thing,
		Status: &models.DeviceStatus{
			Lock: &models.LockStatus{Mode: &models.LockMode{Type: "unlock"}},
		},
	}
}

func thermostatDevice(id, thing string) *models.Device {
	cool, heat := 74, 68
	return &models.Device{
		ID:           id,
		DeviceType:   models.DeviceTypeThermostat,
		IoTThingName: thing,
		Status: &models.DeviceStatus{
			Thermostat: &models.ThermostatStatus{
				Mode:            "cool",
				CoolingSetpoint: &cool,
				HeatingSetpoint: &heat,
			},
		},
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func shadowPayload(thing, body string) []byte {
	return []byte(`{"state":{"reported":{"thing_name":"` + thing + `","status":` + body + `}}}`)
}

func TestDispatchUnknownDevice(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, 50*time.Millisecond)

	err := s.Dispatch(context.Background(), "missing", OpLock, models.NewLockUpdate("lock"))
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

func TestPushDeltaResolvesBeforeTimeout(t *testing.T) {
	dir := &fakeDirectory{devices: map[string]*models.Device{}}
	s := newTestStore(t, dir, 100*time.Millisecond)
	seed(s, lockDevice("1", "thing-1"))

	if err := s.Dispatch(context.Background(), "1", OpLock, models.NewLockUpdate("lock")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !s.IsLoading("thing-1", OpLock) {
		t.Fatal("expected lock flag set after dispatch")
	}

	s.ApplyShadow("topic", shadowPayload("thing-1", `{"mode":{"type":"lock"}}`))

	if s.IsLoading("thing-1", OpLock) {
		t.Error("expected lock flag cleared by delta")
	}
	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "lock" {
		t.Errorf("expected merged mode lock, got %q", d.Status.Lock.Mode.Type)
	}

	// The cancelled timer must not fire a poll.
	time.Sleep(200 * time.Millisecond)
	fetch, _ := dir.counts()
	if fetch != 0 {
		t.Errorf("resolved command must not poll, got %d fetches", fetch)
	}
}

func TestLockDeltaResolvesBothLockAndUnlock(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, lockDevice("1", "thing-1"))

	s.Dispatch(context.Background(), "1", OpLock, models.NewLockUpdate("lock"))
	s.Dispatch(context.Background(), "1", OpUnlock, models.NewLockUpdate("unlock"))

	s.ApplyShadow("topic", shadowPayload("thing-1", `{"mode":{"type":"unlock"}}`))

	loading := s.Loading("thing-1")
	if loading.Lock || loading.Unlock {
		t.Errorf("a mode delta answers both lock flags, got %+v", loading)
	}
}

func TestTimeoutPollReplacesDevice(t *testing.T) {
	polled := lockDevice("1", "thing-1")
	polled.Status.Lock.Mode.Type = "lock"
	polled.DeviceName = "Front Door"

	dir := &fakeDirectory{devices: map[string]*models.Device{"1": polled}}
	s := newTestStore(t, dir, 50*time.Millisecond)
	seed(s, lockDevice("1", "thing-1"))

	if err := s.Dispatch(context.Background(), "1", OpLock, models.NewLockUpdate("lock")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return !s.IsLoading("thing-1", OpLock)
	})

	fetch, _ := dir.counts()
	if fetch != 1 {
		t.Errorf("expected exactly one reconciliation poll, got %d", fetch)
	}
	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "lock" || d.DeviceName != "Front Door" {
		t.Errorf("expected polled record to replace cached device, got %+v", d)
	}
}

func TestTimeoutPollFailureStillClearsFlag(t *testing.T) {
	dir := &fakeDirectory{devices: map[string]*models.Device{}}
	s := newTestStore(t, dir, 50*time.Millisecond)
	seed(s, lockDevice("1", "thing-1"))

	s.Dispatch(context.Background(), "1", OpLock, models.NewLockUpdate("lock"))

	waitFor(t, time.Second, func() bool {
		return !s.IsLoading("thing-1", OpLock)
	})

	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "unlock" {
		t.Errorf("failed poll must keep cached state, got %q", d.Status.Lock.Mode.Type)
	}
}

func TestUpdateFailureKeepsFlagUntilReconcile(t *testing.T) {
	dir := &fakeDirectory{
		devices:   map[string]*models.Device{"1": lockDevice("1", "thing-1")},
		updateErr: errors.New("gateway timeout"),
	}
	s := newTestStore(t, dir, 50*time.Millisecond)
	seed(s, lockDevice("1", "thing-1"))

	err := s.Dispatch(context.Background(), "1", OpLock, models.NewLockUpdate("lock"))
	if err == nil {
		t.Fatal("expected the update error back")
	}
	if !s.IsLoading("thing-1", OpLock) {
		t.Fatal("flag must stay set while reconciliation is pending")
	}

	waitFor(t, time.Second, func() bool {
		return !s.IsLoading("thing-1", OpLock)
	})
}

func TestPartialDeltaUpdatesOnlyCarriedFields(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, thermostatDevice("2", "thing-2"))

	s.Dispatch(context.Background(), "2", OpSetpoint, models.NewSetpointUpdate("cool", 71))

	s.ApplyShadow("topic", shadowPayload("thing-2", `{"cooling_setpoint":71}`))

	if s.IsLoading("thing-2", OpSetpoint) {
		t.Error("setpoint delta should clear the setpoint flag")
	}

	d, _ := s.Device("2")
	th := d.Status.Thermostat
	if th.CoolingSetpoint == nil || *th.CoolingSetpoint != 71 {
		t.Errorf("cooling setpoint = %+v, want 71", th.CoolingSetpoint)
	}
	if th.Mode != "cool" {
		t.Errorf("absent fields must not be overwritten, mode = %q", th.Mode)
	}
	if th.HeatingSetpoint == nil || *th.HeatingSetpoint != 68 {
		t.Errorf("heating setpoint = %+v, want untouched 68", th.HeatingSetpoint)
	}
}

func TestThermostatModeDeltaResolvesSetMode(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, thermostatDevice("2", "thing-2"))

	s.Dispatch(context.Background(), "2", OpSetMode, models.NewThermostatModeUpdate("heat", nil))

	s.ApplyShadow("topic", shadowPayload("thing-2", `{"thermostat_mode":"heat"}`))

	if s.IsLoading("thing-2", OpSetMode) {
		t.Error("thermostat mode delta should clear the set_mode flag")
	}
	d, _ := s.Device("2")
	if d.Status.Thermostat.Mode != "heat" {
		t.Errorf("mode = %q, want heat", d.Status.Thermostat.Mode)
	}
}

func TestDeltaForUnknownThingIsNoOp(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, lockDevice("1", "thing-1"))

	s.ApplyShadow("topic", shadowPayload("thing-unknown", `{"mode":{"type":"lock"}}`))

	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "unlock" {
		t.Errorf("unknown-thing delta must not touch other devices, got %q", d.Status.Lock.Mode.Type)
	}
}

func TestMalformedPayloadsAreIgnored(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, lockDevice("1", "thing-1"))

	s.ApplyShadow("topic", []byte("not json"))
	s.ApplyShadow("topic", []byte(`{}`))
	s.ApplyShadow("topic", []byte(`{"state":{}}`))
	s.ApplyShadow("topic", []byte(`{"state":{"reported":{"status":{}}}}`))

	if len(s.Devices()) != 1 {
		t.Error("malformed payloads must leave the cache alone")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, lockDevice("1", "thing-1"))

	payload := shadowPayload("thing-1", `{"mode":{"type":"lock"}}`)
	s.ApplyShadow("topic", payload)
	s.ApplyShadow("topic", payload)

	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "lock" {
		t.Errorf("mode = %q after duplicate delta", d.Status.Lock.Mode.Type)
	}
}

func TestFetchAllKeepsPartialResults(t *testing.T) {
	dir := &fakeDirectory{devices: map[string]*models.Device{
		"a": lockDevice("a", "thing-a"),
		"c": thermostatDevice("c", "thing-c"),
	}}
	s := newTestStore(t, dir, time.Second)

	devices := s.FetchAll(context.Background(), []string{"a", "b", "c"})
	if len(devices) != 2 {
		t.Fatalf("expected 2 fetched devices, got %d", len(devices))
	}

	if len(s.Devices()) != 2 {
		t.Errorf("cache should hold the partial result")
	}
	if _, ok := s.Device("b"); ok {
		t.Error("failed id must not appear in the cache")
	}
}

func TestDevicesReturnsCopies(t *testing.T) {
	s := newTestStore(t, &fakeDirectory{}, time.Second)
	seed(s, lockDevice("1", "thing-1"))

	list := s.Devices()
	list[0].Status.Lock.Mode.Type = "mutated"

	d, _ := s.Device("1")
	if d.Status.Lock.Mode.Type != "unlock" {
		t.Error("caller mutation leaked into the cache")
	}
}
