package models

import (
	"encoding/json"
	"testing"
)

func TestClampSetpoint(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below minimum", 30, MinSetpoint},
		{"at minimum", 45, 45},
		{"in range", 72, 72},
		{"at maximum", 99, 99},
		{"above maximum", 120, MaxSetpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampSetpoint(tt.in); got != tt.want {
				t.Errorf("ClampSetpoint(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLockUpdateWire(t *testing.T) {
	body, err := json.Marshal(NewLockUpdate("lock"))
	if err != nil {
		t.Fatalf("marshal lock update: %v", err)
	}

	want := `{"commands":{"mode":"lock"}}`
	if string(body) != want {
		t.Errorf("lock update body = %s, want %s", body, want)
	}
}

func TestNewThermostatModeUpdate(t *testing.T) {
	heat, cool := 68, 74
	st := &ThermostatStatus{Mode: "cool", HeatingSetpoint: &heat, CoolingSetpoint: &cool}

	t.Run("auto carries both setpoints", func(t *testing.T) {
		req := NewThermostatModeUpdate("auto", st)
		cmd := req.Commands.(ThermostatCommand)
		if cmd.Mode != "auto" {
			t.Errorf("mode = %q, want auto", cmd.Mode)
		}
		if cmd.HeatingSetpoint == nil || *cmd.HeatingSetpoint != 68 {
			t.Errorf("heating setpoint = %+v, want 68", cmd.HeatingSetpoint)
		}
		if cmd.CoolingSetpoint == nil || *cmd.CoolingSetpoint != 74 {
			t.Errorf("cooling setpoint = %+v, want 74", cmd.CoolingSetpoint)
		}
		if cmd.Setpoint != nil {
			t.Error("auto must not carry the single setpoint field")
		}
	})

	t.Run("heat carries heating setpoint", func(t *testing.T) {
		req := NewThermostatModeUpdate("heat", st)
		cmd := req.Commands.(ThermostatCommand)
		if cmd.Setpoint == nil || *cmd.Setpoint != 68 {
			t.Errorf("setpoint = %+v, want 68", cmd.Setpoint)
		}
	})

	t.Run("cool carries cooling setpoint", func(t *testing.T) {
		req := NewThermostatModeUpdate("cool", st)
		cmd := req.Commands.(ThermostatCommand)
		if cmd.Setpoint == nil || *cmd.Setpoint != 74 {
			t.Errorf("setpoint = %+v, want 74", cmd.Setpoint)
		}
	})

	t.Run("off carries mode alone", func(t *testing.T) {
		req := NewThermostatModeUpdate("off", st)
		cmd := req.Commands.(ThermostatCommand)
		if cmd.Setpoint != nil || cmd.HeatingSetpoint != nil || cmd.CoolingSetpoint != nil {
			t.Errorf("off must not carry setpoints, got %+v", cmd)
		}
	})

	t.Run("nil status still sends mode", func(t *testing.T) {
		req := NewThermostatModeUpdate("auto", nil)
		cmd := req.Commands.(ThermostatCommand)
		if cmd.Mode != "auto" {
			t.Errorf("mode = %q, want auto", cmd.Mode)
		}
	})
}

func TestNewSetpointUpdate(t *testing.T) {
	req := NewSetpointUpdate("heat", 150)
	cmd := req.Commands.(ThermostatCommand)

	if cmd.Mode != "heat" {
		t.Errorf("mode = %q, want heat", cmd.Mode)
	}
	if cmd.Setpoint == nil || *cmd.Setpoint != MaxSetpoint {
		t.Errorf("setpoint = %+v, want clamped %d", cmd.Setpoint, MaxSetpoint)
	}

	req = NewSetpointUpdate("auto", 70)
	cmd = req.Commands.(ThermostatCommand)
	if cmd.Mode != "" {
		t.Errorf("auto setpoint change must not re-send mode, got %q", cmd.Mode)
	}
}
