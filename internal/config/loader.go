package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-tello/pkg/mode"
)

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result. An empty path keeps the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeInto(cfg, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates.
// Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeInto(cfg, r); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv layers the per-deployment environment overrides on top of the
// file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = LogLevel(v)
	}
	if v := os.Getenv("TELLO_ADDR"); v != "" {
		cfg.Vehicle.Addr = v
	}
	if v := os.Getenv("TELLO_STATE_ADDR"); v != "" {
		cfg.Vehicle.StateAddr = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		cfg.Bridge.URL = v
	}
	if v := os.Getenv("VLM_BASE_URL"); v != "" {
		cfg.VLM.BaseURL = v
	}
	if v := os.Getenv("VLM_API_KEY"); v != "" {
		cfg.VLM.APIKey = v
	}
	if v := os.Getenv("VLM_MODEL"); v != "" {
		cfg.VLM.Model = v
	}
	if v := os.Getenv("WEB_ADDR"); v != "" {
		cfg.Web.Addr = v
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		cfg.Ops.Addr = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	if cfg.Vehicle.Addr == "" {
		errs = append(errs, fmt.Errorf("vehicle.addr is required"))
	}
	if cfg.Vehicle.StateAddr == "" {
		errs = append(errs, fmt.Errorf("vehicle.state_addr is required"))
	}
	if cfg.Vehicle.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("vehicle.command_timeout must be positive"))
	}

	if cfg.Debounce.HoldFrames < 1 {
		errs = append(errs, fmt.Errorf("debounce.hold_frames must be at least 1"))
	}
	if cfg.Debounce.Confidence <= 0 || cfg.Debounce.Confidence > 1 {
		errs = append(errs, fmt.Errorf("debounce.confidence %.2f is out of range (0, 1]", cfg.Debounce.Confidence))
	}

	if cfg.Dispatch.MoveDistanceCM < 20 || cfg.Dispatch.MoveDistanceCM > 500 {
		errs = append(errs, fmt.Errorf("dispatch.move_distance_cm %d is out of range [20, 500]", cfg.Dispatch.MoveDistanceCM))
	}
	if cfg.Dispatch.RotateDegrees < 1 || cfg.Dispatch.RotateDegrees > 360 {
		errs = append(errs, fmt.Errorf("dispatch.rotate_degrees %d is out of range [1, 360]", cfg.Dispatch.RotateDegrees))
	}
	if cfg.Dispatch.LandRetries < 1 {
		errs = append(errs, fmt.Errorf("dispatch.land_retries must be at least 1"))
	}

	if cfg.Safety.BatteryCritical >= cfg.Safety.BatteryLow {
		errs = append(errs, fmt.Errorf("safety.battery_critical %d must be below safety.battery_low %d",
			cfg.Safety.BatteryCritical, cfg.Safety.BatteryLow))
	}
	if cfg.Safety.TelemetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("safety.telemetry_timeout must be positive"))
	}
	if cfg.Safety.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("safety.check_interval must be positive"))
	}

	if cfg.Engine.QueueSize < 8 {
		errs = append(errs, fmt.Errorf("engine.queue_size %d is too small; minimum 8", cfg.Engine.QueueSize))
	}
	if cfg.Engine.DefaultMode != "" {
		if _, err := mode.Parse(cfg.Engine.DefaultMode); err != nil {
			errs = append(errs, fmt.Errorf("engine.default_mode: %w", err))
		}
	}

	if cfg.VLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("vlm.base_url is required"))
	}
	if cfg.VLM.Model == "" {
		errs = append(errs, fmt.Errorf("vlm.model is required"))
	}
	if cfg.VLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("vlm.timeout must be positive"))
	}

	if cfg.Web.Addr == "" {
		errs = append(errs, fmt.Errorf("web.addr is required"))
	}
	if cfg.Ops.Addr == "" {
		errs = append(errs, fmt.Errorf("ops.addr is required"))
	}

	return errors.Join(errs...)
}
