package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
log:
  level: debug
vehicle:
  addr: "127.0.0.1:18889"
  command_timeout: "2s"
debounce:
  hold_frames: 3
dispatch:
  movement_cooldown: "250ms"
engine:
  default_mode: gesture
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Log.Level != LevelDebug {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}
	if cfg.Vehicle.Addr != "127.0.0.1:18889" {
		t.Errorf("vehicle addr: got %q", cfg.Vehicle.Addr)
	}
	if cfg.Vehicle.CommandTimeout.Std() != 2*time.Second {
		t.Errorf("command timeout: got %v", cfg.Vehicle.CommandTimeout.Std())
	}
	if cfg.Debounce.HoldFrames != 3 {
		t.Errorf("hold frames: got %d", cfg.Debounce.HoldFrames)
	}
	if cfg.Dispatch.MovementCooldown.Std() != 250*time.Millisecond {
		t.Errorf("movement cooldown: got %v", cfg.Dispatch.MovementCooldown.Std())
	}
	if cfg.Engine.DefaultMode != "gesture" {
		t.Errorf("default mode: got %q", cfg.Engine.DefaultMode)
	}

	// Untouched sections keep their defaults.
	if cfg.Safety.BatteryLow != 15 {
		t.Errorf("battery low default lost: got %d", cfg.Safety.BatteryLow)
	}
	if cfg.VLM.Model != "llava" {
		t.Errorf("vlm model default lost: got %q", cfg.VLM.Model)
	}
}

func TestLoadFromReader_RejectsUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
vehicle:
  adress: "127.0.0.1:8889"
`))
	if err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestLoadFromReader_RejectsUnitlessDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
vehicle:
  command_timeout: 7
`))
	if err == nil {
		t.Fatal("bare-number duration accepted")
	}
}

func TestLoadFromReader_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config rejected: %v", err)
	}
	if cfg.Vehicle.Addr != Default().Vehicle.Addr {
		t.Errorf("vehicle addr: got %q", cfg.Vehicle.Addr)
	}
}

func TestValidate_CollectsEveryFailure(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Debounce.Confidence = 1.5
	cfg.Dispatch.MoveDistanceCM = 5
	cfg.Safety.BatteryCritical = 50 // above battery_low
	cfg.Engine.DefaultMode = "autopilot"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{
		"log.level",
		"debounce.confidence",
		"dispatch.move_distance_cm",
		"safety.battery_critical",
		"engine.default_mode",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error is missing %q: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TELLO_ADDR", "10.0.0.7:8889")
	t.Setenv("VLM_MODEL", "qwen2-vl")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vehicle.Addr != "10.0.0.7:8889" {
		t.Errorf("env vehicle addr: got %q", cfg.Vehicle.Addr)
	}
	if cfg.VLM.Model != "qwen2-vl" {
		t.Errorf("env vlm model: got %q", cfg.VLM.Model)
	}
}
