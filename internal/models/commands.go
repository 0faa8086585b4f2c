package models

// Thermostat setpoint bounds enforced before a command leaves the bridge.
const (
	MinSetpoint = 45
	MaxSetpoint = 99
)

// ClampSetpoint pins a requested setpoint into the supported range.
func ClampSetpoint(v int) int {
	if v < MinSetpoint {
		return MinSetpoint
	}
	if v > MaxSetpoint {
		return MaxSetpoint
	}
	return v
}

// NewLockUpdate builds the update body for a lock/unlock command.
func NewLockUpdate(mode string) DeviceUpdateRequest {
	return DeviceUpdateRequest{Commands: LockCommand{Mode: mode}}
}

// NewThermostatModeUpdate builds the update body for a mode change.
// Switching to auto re-sends both current setpoints, heat/cool re-send the
// matching single setpoint, and off sends the mode alone.
func NewThermostatModeUpdate(mode string, st *ThermostatStatus) DeviceUpdateRequest {
	cmd := ThermostatCommand{Mode: mode}
	if st != nil {
		switch mode {
		case "auto":
			cmd.HeatingSetpoint = st.HeatingSetpoint
			cmd.CoolingSetpoint = st.CoolingSetpoint
		case "heat":
			cmd.Setpoint = st.HeatingSetpoint
		case "cool":
			cmd.Setpoint = st.CoolingSetpoint
		}
	}
	return DeviceUpdateRequest{Commands: cmd}
}

// NewSetpointUpdate builds the update body for a setpoint change in the
// given thermostat mode. The value is clamped before it is sent.
func NewSetpointUpdate(mode string, value int) DeviceUpdateRequest {
	v := ClampSetpoint(value)
	cmd := ThermostatCommand{Setpoint: &v}
	if mode == "heat" || mode == "cool" {
		cmd.Mode = mode
	}
	return DeviceUpdateRequest{Commands: cmd}
}
