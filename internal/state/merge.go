package state

import "github.com/smarthome-bridge/smarthome-bridge/internal/models"

// mergeShadow patches a delta into the device's status variant. Only
// fields the payload carries are written; absent fields never overwrite
// previously known state. Runs inside the Run goroutine.
func (s *Store) mergeShadow(d *models.Device, status *models.ShadowStatus) {
	if status == nil {
		return
	}

	if status.Mode != nil && status.Mode.Type != nil {
		s.mergeLockMode(d, *status.Mode.Type)
	}

	if status.ThermostatMode != nil || status.CoolingSetpoint != nil || status.HeatingSetpoint != nil {
		s.mergeThermostat(d, status)
	}
}

func (s *Store) mergeLockMode(d *models.Device, mode string) {
	if d.DeviceType != models.DeviceTypeLock && (d.Status == nil || d.Status.Lock == nil) {
		s.log.Debug().
			Str("thing_name", d.IoTThingName).
			Msg("Lock delta for non-lock device ignored")
		return
	}

	if d.Status == nil {
		d.Status = &models.DeviceStatus{}
	}
	if d.Status.Lock == nil {
		d.Status.Lock = &models.LockStatus{}
	}
	if d.Status.Lock.Mode == nil {
		d.Status.Lock.Mode = &models.LockMode{}
	}
	d.Status.Lock.Mode.Type = mode

	s.log.Info().
		Str("thing_name", d.IoTThingName).
		Str("mode", mode).
		Msg("Lock mode updated from shadow")
}

func (s *Store) mergeThermostat(d *models.Device, status *models.ShadowStatus) {
	if d.DeviceType != models.DeviceTypeThermostat && (d.Status == nil || d.Status.Thermostat == nil) {
		s.log.Debug().
			Str("thing_name", d.IoTThingName).
			Msg("Thermostat delta for non-thermostat device ignored")
		return
	}

	if d.Status == nil {
		d.Status = &models.DeviceStatus{}
	}
	if d.Status.Thermostat == nil {
		d.Status.Thermostat = &models.ThermostatStatus{}
	}

	th := d.Status.Thermostat
	if status.ThermostatMode != nil {
		th.Mode = *status.ThermostatMode
	}
	if status.CoolingSetpoint != nil {
		v := *status.CoolingSetpoint
		th.CoolingSetpoint = &v
	}
	if status.HeatingSetpoint != nil {
		v := *status.HeatingSetpoint
		th.HeatingSetpoint = &v
	}

	s.log.Info().
		Str("thing_name", d.IoTThingName).
		Msg("Thermostat status updated from shadow")
}
