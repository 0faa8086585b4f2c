package models

import (
	"encoding/json"
	"fmt"
)

// DeviceType identifies the kind of smart-home device behind a record.
type DeviceType string

const (
	DeviceTypeLock       DeviceType = "lock"
	DeviceTypeThermostat DeviceType = "thermostat"
)

// Known reports whether the type is one the bridge understands. Anything
// else is carried through untouched and rendered as unknown downstream.
func (t DeviceType) Known() bool {
	return t == DeviceTypeLock || t == DeviceTypeThermostat
}

// Device represents a cloud device record. Field names follow the
// directory API's snake_case wire format.
type Device struct {
	ID                string        `json:"id"`
	DeviceName        string        `json:"device_name,omitempty"`
	DeviceType        DeviceType    `json:"device_type,omitempty"`
	IoTThingName      string        `json:"iot_thing_name,omitempty"`
	OccupantSetting   string        `json:"occupant_setting,omitempty"`
	TopicName         string        `json:"topic_name,omitempty"`
	ModelNumber       string        `json:"model_number,omitempty"`
	RemoteDeviceID    string        `json:"remote_device_id,omitempty"`
	PowerSource       string        `json:"power_source,omitempty"`
	ZWaveSecurity     string        `json:"zwave_security,omitempty"`
	LogMinDate        string        `json:"log_mindate,omitempty"`
	BatteryUpdatedAt  *int64        `json:"battery_updated_at,omitempty"`
	LastActivity      *int64        `json:"last_activity,omitempty"`
	SharedArea        *bool         `json:"shared_area,omitempty"`
	TwoWayPowerSource *bool         `json:"two_way_power_source,omitempty"`
	Status            *DeviceStatus `json:"status,omitempty"`
	Settings          *Settings     `json:"settings,omitempty"`
}

// Clone returns a deep copy so callers can never mutate the store's record.
func (d *Device) Clone() *Device {
	c := *d
	if d.Status != nil {
		c.Status = d.Status.Clone()
	}
	if d.Settings != nil {
		s := *d.Settings
		c.Settings = &s
	}
	c.BatteryUpdatedAt = cloneInt64(d.BatteryUpdatedAt)
	c.LastActivity = cloneInt64(d.LastActivity)
	c.SharedArea = cloneBool(d.SharedArea)
	c.TwoWayPowerSource = cloneBool(d.TwoWayPowerSource)
	return &c
}

// DeviceStatus holds exactly one status variant. The wire format is
// untagged, so decoding probes the known shapes in a fixed order: lock
// first, thermostat second. A lock's mode is an object while a
// thermostat's mode is a string, which is what keeps the probes apart.
type DeviceStatus struct {
	Lock       *LockStatus
	Thermostat *ThermostatStatus
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	var lock LockStatus
	if err := json.Unmarshal(data, &lock); err == nil {
		s.Lock = &lock
		s.Thermostat = nil
		return nil
	}

	var th ThermostatStatus
	if err := json.Unmarshal(data, &th); err == nil {
		s.Thermostat = &th
		s.Lock = nil
		return nil
	}

	return fmt.Errorf("unexpected device status shape")
}

// MarshalJSON implements json.Marshaler.
func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	switch {
	case s.Lock != nil:
		return json.Marshal(s.Lock)
	case s.Thermostat != nil:
		return json.Marshal(s.Thermostat)
	default:
		return []byte("null"), nil
	}
}

// Clone returns a deep copy of the populated variant.
func (s *DeviceStatus) Clone() *DeviceStatus {
	c := &DeviceStatus{}
	if s.Lock != nil {
		l := *s.Lock
		if s.Lock.Mode != nil {
			m := *s.Lock.Mode
			l.Mode = &m
		}
		l.Battery = cloneInt(s.Lock.Battery)
		l.ZWaveSignal = cloneInt(s.Lock.ZWaveSignal)
		l.BatteryZWave = cloneInt(s.Lock.BatteryZWave)
		c.Lock = &l
	}
	if s.Thermostat != nil {
		t := *s.Thermostat
		t.Battery = cloneInt(s.Thermostat.Battery)
		t.RoomTemp = cloneInt(s.Thermostat.RoomTemp)
		t.RoomHumidity = cloneInt(s.Thermostat.RoomHumidity)
		t.ZWaveSignal = cloneInt(s.Thermostat.ZWaveSignal)
		t.CoolingSetpoint = cloneInt(s.Thermostat.CoolingSetpoint)
		t.HeatingSetpoint = cloneInt(s.Thermostat.HeatingSetpoint)
		t.BatteryZWave = cloneInt(s.Thermostat.BatteryZWave)
		c.Thermostat = &t
	}
	return c
}

// LockStatus is the status variant for door locks.
type LockStatus struct {
	Mode         *LockMode `json:"mode,omitempty"`
	Battery      *int      `json:"battery,omitempty"`
	PowerSource  string    `json:"power_source,omitempty"`
	ZWaveSignal  *int      `json:"zwave_signal,omitempty"`
	BatteryZWave *int      `json:"battery_zwave,omitempty"`
}

// LockMode wraps the lock's mode string ("lock" / "unlock").
type LockMode struct {
	Type string `json:"type,omitempty"`
}

// ThermostatStatus is the status variant for thermostats. Mode is a plain
// string here ("heat", "cool", "auto", "off"), unlike the lock variant.
type ThermostatStatus struct {
	Mode            string `json:"mode,omitempty"`
	Fan             string `json:"fan,omitempty"`
	OperatingState  string `json:"operating_state,omitempty"`
	PowerSource     string `json:"power_source,omitempty"`
	Battery         *int   `json:"battery,omitempty"`
	RoomTemp        *int   `json:"room_temp,omitempty"`
	RoomHumidity    *int   `json:"room_humidity,omitempty"`
	ZWaveSignal     *int   `json:"zwave_signal,omitempty"`
	CoolingSetpoint *int   `json:"cooling_setpoint,omitempty"`
	HeatingSetpoint *int   `json:"heating_setpoint,omitempty"`
	BatteryZWave    *int   `json:"battery_zwave,omitempty"`
}

// Settings carries per-device settings; only the schedule is consumed.
type Settings struct {
	Schedule string `json:"schedule,omitempty"`
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
