package models

// ShadowPayload is the push-channel envelope. Deltas are partial: only the
// fields a payload carries may be written into the cached device.
type ShadowPayload struct {
	State *ShadowState `json:"state"`
}

// ShadowState wraps the reported section of a shadow update.
type ShadowState struct {
	Reported *ShadowReported `json:"reported"`
}

// ShadowReported identifies the target device by its IoT thing name, which
// is not the same identifier the REST endpoints use.
type ShadowReported struct {
	ThingName string        `json:"thing_name"`
	Status    *ShadowStatus `json:"status"`
}

// ShadowStatus carries the changed fields of a delta. Nil means absent.
type ShadowStatus struct {
	Mode            *ShadowMode `json:"mode,omitempty"`
	ThermostatMode  *string     `json:"thermostat_mode,omitempty"`
	CoolingSetpoint *int        `json:"cooling_setpoint,omitempty"`
	HeatingSetpoint *int        `json:"heating_setpoint,omitempty"`
}

// ShadowMode is the lock-mode object inside a shadow delta.
type ShadowMode struct {
	Type    *string `json:"type,omitempty"`
	Source  *string `json:"source,omitempty"`
	AgentID *int64  `json:"agent_id,omitempty"`
}

// DeviceUpdateRequest is the PUT body for device commands. Commands holds
// either a LockCommand or a ThermostatCommand.
type DeviceUpdateRequest struct {
	Commands interface{} `json:"commands"`
}

// LockCommand commands a lock into a mode ("lock" or "unlock").
type LockCommand struct {
	Mode string `json:"mode"`
}

// ThermostatCommand commands a thermostat. Mode changes to heat/cool carry
// a single setpoint; auto carries both; off carries the mode alone.
type ThermostatCommand struct {
	Mode            string `json:"mode,omitempty"`
	Setpoint        *int   `json:"setpoint,omitempty"`
	HeatingSetpoint *int   `json:"heating_setpoint,omitempty"`
	CoolingSetpoint *int   `json:"cooling_setpoint,omitempty"`
}

// UpdateDeviceResponse is the directory's acknowledgement of a command.
// The cloud treats the PUT as accepted, not applied; final state arrives
// out of band.
type UpdateDeviceResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}
