package localapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/smarthome-bridge/smarthome-bridge/internal/api"
	"github.com/smarthome-bridge/smarthome-bridge/internal/models"
	"github.com/smarthome-bridge/smarthome-bridge/internal/state"
)

// deviceView is a device record plus its loading flags, the shape the UI
// renders from.
type deviceView struct {
	models.Device
	Loading state.OperationLoading `json:"loading"`
}

// commandRequest is the body for POST /devices/{id}/commands.
type commandRequest struct {
	Type     string `json:"type"`
	Mode     string `json:"mode,omitempty"`
	Setpoint *int   `json:"setpoint,omitempty"`
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// HandleListDevices returns the cached device list with loading flags
func (s *Server) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.store.Devices()

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			Device:  d,
			Loading: s.store.Loading(d.IoTThingName),
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": views,
		"count":   len(views),
	})
}

// HandleGetDevice returns one cached device
func (s *Server) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	device, ok := s.store.Device(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	s.respondJSON(w, http.StatusOK, deviceView{
		Device:  device,
		Loading: s.store.Loading(device.IoTThingName),
	})
}

// HandleDispatchCommand validates and dispatches a device command. The
// response is 202: the command is pending until a shadow delta or the
// reconciliation poll settles it.
func (s *Server) HandleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, ok := s.store.Device(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	op, update, err := buildCommand(&device, req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Dispatch(r.Context(), id, op, update); err != nil {
		s.respondDispatchError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "pending",
		"thing_name": device.IoTThingName,
		"operation":  string(op),
	})
}

// HandleRefreshDevices re-fetches the given device ids and replaces the
// cache with whichever fetches succeed.
func (s *Server) HandleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "ids is required")
		return
	}

	devices := s.store.FetchAll(r.Context(), req.IDs)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requested": len(req.IDs),
		"fetched":   len(devices),
	})
}

// buildCommand turns a command request into the operation kind and wire
// body for the device's type.
func buildCommand(device *models.Device, req commandRequest) (state.Operation, models.DeviceUpdateRequest, error) {
	switch req.Type {
	case "lock":
		if device.DeviceType != models.DeviceTypeLock {
			return "", models.DeviceUpdateRequest{}, errors.New("device is not a lock")
		}
		return state.OpLock, models.NewLockUpdate("lock"), nil

	case "unlock":
		if device.DeviceType != models.DeviceTypeLock {
			return "", models.DeviceUpdateRequest{}, errors.New("device is not a lock")
		}
		return state.OpUnlock, models.NewLockUpdate("unlock"), nil

	case "set_mode":
		if device.DeviceType != models.DeviceTypeThermostat {
			return "", models.DeviceUpdateRequest{}, errors.New("device is not a thermostat")
		}
		switch req.Mode {
		case "heat", "cool", "auto", "off":
		default:
			return "", models.DeviceUpdateRequest{}, errors.New("mode must be one of heat, cool, auto, off")
		}
		var st *models.ThermostatStatus
		if device.Status != nil {
			st = device.Status.Thermostat
		}
		return state.OpSetMode, models.NewThermostatModeUpdate(req.Mode, st), nil

	case "set_setpoint":
		if device.DeviceType != models.DeviceTypeThermostat {
			return "", models.DeviceUpdateRequest{}, errors.New("device is not a thermostat")
		}
		if req.Setpoint == nil {
			return "", models.DeviceUpdateRequest{}, errors.New("setpoint is required")
		}
		mode := req.Mode
		if mode == "" && device.Status != nil && device.Status.Thermostat != nil {
			mode = device.Status.Thermostat.Mode
		}
		return state.OpSetpoint, models.NewSetpointUpdate(mode, *req.Setpoint), nil

	default:
		return "", models.DeviceUpdateRequest{}, errors.New("type must be one of lock, unlock, set_mode, set_setpoint")
	}
}

// respondDispatchError maps sync-engine and network failures onto the
// status codes the UI keys its prompts off.
func (s *Server) respondDispatchError(w http.ResponseWriter, err error) {
	var serverErr *api.ServerError

	switch {
	case errors.Is(err, state.ErrUnknownDevice):
		s.respondError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, api.ErrNoConnectivity):
		s.respondError(w, http.StatusServiceUnavailable, "no connectivity")
	case errors.Is(err, api.ErrUnauthenticated):
		s.respondError(w, http.StatusUnauthorized, "sync required")
	case errors.As(err, &serverErr):
		if serverErr.SyncRequired() {
			s.respondError(w, http.StatusUnauthorized, "sync required")
			return
		}
		s.respondError(w, http.StatusBadGateway, "device service error")
	default:
		s.respondError(w, http.StatusBadGateway, "device update failed")
	}
}

// respondJSON responds with JSON
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
