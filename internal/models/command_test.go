package models

import "testing"

func TestCommandStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to CommandStatus
		allowed  bool
	}{
		{CommandStatusPending, CommandStatusSent, true},
		{CommandStatusPending, CommandStatusCancelled, true},
		{CommandStatusPending, CommandStatusExpired, true},
		{CommandStatusPending, CommandStatusExecuted, false},
		{CommandStatusSent, CommandStatusAcknowledged, true},
		{CommandStatusSent, CommandStatusFailed, true},
		{CommandStatusAcknowledged, CommandStatusExecuted, true},
		{CommandStatusAcknowledged, CommandStatusPending, false},
		{CommandStatusExecuted, CommandStatusPending, false},
		{CommandStatusCancelled, CommandStatusSent, false},
		{CommandStatusExpired, CommandStatusPending, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestCommandStatusTerminal(t *testing.T) {
	terminal := []CommandStatus{
		CommandStatusExecuted, CommandStatusFailed,
		CommandStatusExpired, CommandStatusCancelled,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	open := []CommandStatus{CommandStatusPending, CommandStatusSent, CommandStatusAcknowledged}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCommandTypeCounterpart(t *testing.T) {
	if c, ok := CommandEnableLostMode.Counterpart(); !ok || c != CommandDisableLostMode {
		t.Fatalf("enable_lost_mode counterpart: got %s, %v", c, ok)
	}
	if c, ok := CommandDisableLostMode.Counterpart(); !ok || c != CommandEnableLostMode {
		t.Fatalf("disable_lost_mode counterpart: got %s, %v", c, ok)
	}
	if _, ok := CommandReboot.Counterpart(); ok {
		t.Fatal("reboot should have no counterpart")
	}
}

func TestConfigurationAsCommand(t *testing.T) {
	cfg := &DeviceConfiguration{
		ConfigData: Variables{"reportInterval": 60},
		Status:     ConfigStatusPending,
	}

	cmd := cfg.AsCommand()
	if cmd.CommandType != CommandUpdateConfig {
		t.Fatalf("expected update_config, got %s", cmd.CommandType)
	}
	if cmd.Status != CommandStatusPending {
		t.Fatalf("expected pending, got %s", cmd.Status)
	}
	if cmd.CommandData["reportInterval"] != 60 {
		t.Fatal("config data not carried over")
	}
}
