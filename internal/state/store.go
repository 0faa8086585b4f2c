package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
)

// ErrUnknownDevice is returned when a command targets a device id that is
// not in the cache.
var ErrUnknownDevice = errors.New("unknown device")

// shadowTimeout is the fixed reconciliation window: if no push delta lands
// within it after a command, the engine polls the directory once.
const shadowTimeout = 8 * time.Second

// Operation is one of the four command kinds tracked per device.
type Operation string

const (
	OpLock     Operation = "lock"
	OpUnlock   Operation = "unlock"
	OpSetMode  Operation = "set_mode"
	OpSetpoint Operation = "set_setpoint"
)

// opKey indexes a loading flag: one flag per (thing name, operation).
type opKey struct {
	Thing string
	Op    Operation
}

// OperationLoading is a snapshot of the four flags for one thing name.
type OperationLoading struct {
	Lock     bool `json:"lock"`
	Unlock   bool `json:"unlock"`
	SetMode  bool `json:"set_mode"`
	Setpoint bool `json:"set_setpoint"`
}

// DirectoryAPI is the slice of the directory client the store needs.
type DirectoryAPI interface {
	FetchDevice(ctx context.Context, id string) *models.Device
	UpdateDevice(ctx context.Context, id string, req models.DeviceUpdateRequest) (*models.UpdateDeviceResponse, error)
}

// Store is the in-memory source of truth for devices and loading flags.
// All mutation is funneled through a single goroutine (the Run loop);
// callers submit closures to the mailbox instead of touching shared state,
// so concurrent commands, push deltas and polls never interleave a
// half-applied update.
type Store struct {
	api     DirectoryAPI
	mailbox chan func()
	quit    chan struct{}
	once    sync.Once

	// Owned by the Run goroutine.
	devices []*models.Device
	loading map[opKey]bool

	rec *reconciler
	log zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithReconcileTimeout overrides the reconciliation window. Tests only;
// the production window is fixed.
func WithReconcileTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.rec.timeout = d
	}
}

// WithLogger overrides the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates a device state store. Run must be started before any
// other method is called.
func NewStore(directory DirectoryAPI, opts ...Option) *Store {
	s := &Store{
		api:     directory,
		mailbox: make(chan func()),
		quit:    make(chan struct{}),
		loading: make(map[opKey]bool),
		log:     log.With().Str("component", "device-store").Logger(),
	}
	s.rec = newReconciler(shadowTimeout, s.reconcile)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run owns all store state. It executes submitted intents until the
// context is cancelled.
func (s *Store) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.quit) })
	defer s.rec.stopAll()

	s.log.Info().Msg("Device store started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.mailbox:
			fn()
		}
	}
}

// do submits an intent to the Run loop and waits for it to execute.
func (s *Store) do(fn func()) {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}

	select {
	case s.mailbox <- wrapped:
		<-done
	case <-s.quit:
	}
}

// Devices returns a copy of the cached device list.
func (s *Store) Devices() []models.Device {
	var out []models.Device
	s.do(func() {
		out = make([]models.Device, 0, len(s.devices))
		for _, d := range s.devices {
			out = append(out, *d.Clone())
		}
	})
	return out
}

// Device returns a copy of one device by directory id.
func (s *Store) Device(id string) (models.Device, bool) {
	var (
		out models.Device
		ok  bool
	)
	s.do(func() {
		if d := s.findByID(id); d != nil {
			out = *d.Clone()
			ok = true
		}
	})
	return out, ok
}

// Loading returns the flag snapshot for one thing name.
func (s *Store) Loading(thing string) OperationLoading {
	var out OperationLoading
	s.do(func() {
		out = s.loadingSnapshot(thing)
	})
	return out
}

// IsLoading reports one flag.
func (s *Store) IsLoading(thing string, op Operation) bool {
	var out bool
	s.do(func() {
		out = s.loading[opKey{Thing: thing, Op: op}]
	})
	return out
}

// Dispatch runs one command cycle: set the operation flag, issue the
// update, arm the reconciliation timer. The flag is cleared later by
// whichever of push delta or timeout poll arrives first. The update error
// is returned, but the timer stays armed either way so the flag can never
// stay stuck true.
func (s *Store) Dispatch(ctx context.Context, deviceID string, op Operation, req models.DeviceUpdateRequest) error {
	var (
		thing string
		found bool
	)
	s.do(func() {
		if d := s.findByID(deviceID); d != nil {
			thing = d.IoTThingName
			found = true
		}
	})
	if !found {
		return ErrUnknownDevice
	}

	key := opKey{Thing: thing, Op: op}
	s.do(func() {
		// A repeat command for a pending key supersedes the prior cycle:
		// the flag stays true and the timer below is re-armed.
		s.loading[key] = true
	})

	s.log.Info().
		Str("device_id", deviceID).
		Str("thing_name", thing).
		Str("operation", string(op)).
		Msg("Command dispatched")

	_, err := s.api.UpdateDevice(ctx, deviceID, req)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("device_id", deviceID).
			Str("operation", string(op)).
			Msg("Device update failed, waiting for reconciliation")
	}

	s.do(func() {
		if s.loading[key] {
			s.rec.arm(key, deviceID)
		}
	})

	return err
}

// ApplyShadow is the push-channel merge entry point. Malformed payloads
// and unknown thing names are silent no-ops; merging is idempotent, so a
// delta that races the reconciliation poll is safe in either order.
func (s *Store) ApplyShadow(topic string, payload []byte) {
	var p models.ShadowPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Debug().Err(err).Str("topic", topic).Msg("Undecodable shadow payload")
		return
	}
	if p.State == nil || p.State.Reported == nil || p.State.Reported.ThingName == "" {
		s.log.Debug().Str("topic", topic).Msg("Shadow payload missing reported envelope")
		return
	}

	reported := p.State.Reported
	s.do(func() {
		d := s.findByThing(reported.ThingName)
		if d == nil {
			s.log.Debug().
				Str("thing_name", reported.ThingName).
				Msg("Shadow delta for unknown device")
			return
		}

		s.mergeShadow(d, reported.Status)
		s.resolvePending(reported.ThingName, reported.Status)
	})
}

// FetchAll fetches every id concurrently, keeps whichever succeed, and
// replaces the cached list with the result. Result order is fetch
// completion order, not input order.
func (s *Store) FetchAll(ctx context.Context, ids []string) []models.Device {
	var (
		mu      sync.Mutex
		fetched []*models.Device
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if d := s.api.FetchDevice(ctx, id); d != nil {
				mu.Lock()
				fetched = append(fetched, d)
				mu.Unlock()
			}
			// Failed ids are dropped; partial results are fine.
			return nil
		})
	}
	g.Wait()

	var out []models.Device
	s.do(func() {
		s.devices = fetched
		out = make([]models.Device, 0, len(fetched))
		for _, d := range fetched {
			out = append(out, *d.Clone())
		}
	})

	s.log.Info().
		Int("requested", len(ids)).
		Int("fetched", len(out)).
		Msg("Device list refreshed")

	return out
}

// reconcile is the timer callback: if the flag is still pending, poll the
// directory once and replace the device wholesale; clear the flag
// regardless of poll outcome so the UI is never blocked forever.
func (s *Store) reconcile(key opKey, deviceID string) {
	var pending bool
	s.do(func() {
		pending = s.loading[key]
	})
	if !pending {
		return
	}

	s.log.Debug().
		Str("thing_name", key.Thing).
		Str("operation", string(key.Op)).
		Msg("No shadow delta within window, polling")

	ctx, cancel := context.WithTimeout(context.Background(), shadowTimeout)
	defer cancel()
	device := s.api.FetchDevice(ctx, deviceID)

	s.do(func() {
		if device != nil {
			s.replaceDevice(device)
		} else {
			s.log.Warn().
				Str("device_id", deviceID).
				Msg("Reconciliation poll failed, cached state may be stale")
		}
		s.loading[key] = false
	})
}

// ---- methods below run inside the Run goroutine ----

func (s *Store) findByID(id string) *models.Device {
	for _, d := range s.devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *Store) findByThing(thing string) *models.Device {
	for _, d := range s.devices {
		if d.IoTThingName == thing {
			return d
		}
	}
	return nil
}

func (s *Store) replaceDevice(device *models.Device) {
	for i, d := range s.devices {
		if d.ID == device.ID {
			s.devices[i] = device
			return
		}
	}
	s.devices = append(s.devices, device)
}

func (s *Store) loadingSnapshot(thing string) OperationLoading {
	return OperationLoading{
		Lock:     s.loading[opKey{Thing: thing, Op: OpLock}],
		Unlock:   s.loading[opKey{Thing: thing, Op: OpUnlock}],
		SetMode:  s.loading[opKey{Thing: thing, Op: OpSetMode}],
		Setpoint: s.loading[opKey{Thing: thing, Op: OpSetpoint}],
	}
}

// resolvePending clears the flags answered by a delta and cancels their
// timers. A delta carrying a lock mode answers both lock and unlock; a
// thermostat mode answers set_mode; either setpoint answers set_setpoint.
func (s *Store) resolvePending(thing string, status *models.ShadowStatus) {
	if status == nil {
		return
	}

	clear := func(op Operation) {
		key := opKey{Thing: thing, Op: op}
		if s.loading[key] {
			s.loading[key] = false
			s.rec.cancel(key)
		}
	}

	if status.Mode != nil && status.Mode.Type != nil {
		clear(OpLock)
		clear(OpUnlock)
	}
	if status.ThermostatMode != nil {
		clear(OpSetMode)
	}
	if status.CoolingSetpoint != nil || status.HeatingSetpoint != nil {
		clear(OpSetpoint)
	}
}
