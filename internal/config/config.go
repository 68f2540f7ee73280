// Package config defines the YAML configuration schema for the pilot and
// its bench tools, with environment overrides layered on top for the
// deployment knobs that change per network.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel is a named slog level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// IsValid reports whether the level is one of the known names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written with units
// ("500ms", "3s", "2m"). Bare numbers are rejected to avoid unit guesses.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string with units, e.g. \"500ms\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root of the configuration tree.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Debounce DebounceConfig `yaml:"debounce"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Safety   SafetyConfig   `yaml:"safety"`
	Engine   EngineConfig   `yaml:"engine"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	VLM      VLMConfig      `yaml:"vlm"`
	Web      WebConfig      `yaml:"web"`
	Ops      OpsConfig      `yaml:"ops"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level LogLevel `yaml:"level"`
}

// VehicleConfig points at the aircraft.
type VehicleConfig struct {
	// Addr is the aircraft command endpoint.
	Addr string `yaml:"addr"`

	// StateAddr is the local listen address for the telemetry stream.
	StateAddr string `yaml:"state_addr"`

	// CommandTimeout bounds one acknowledgment round-trip.
	CommandTimeout Duration `yaml:"command_timeout"`
}

// DebounceConfig tunes the recognizer filters.
type DebounceConfig struct {
	HoldFrames         int      `yaml:"hold_frames"`
	Confidence         float64  `yaml:"confidence"`
	GestureMinInterval Duration `yaml:"gesture_min_interval"`
	VoiceMinInterval   Duration `yaml:"voice_min_interval"`
}

// DispatchConfig tunes cooldowns and command magnitudes.
type DispatchConfig struct {
	MoveDistanceCM   int      `yaml:"move_distance_cm"`
	RotateDegrees    int      `yaml:"rotate_degrees"`
	MovementCooldown Duration `yaml:"movement_cooldown"`
	VisionCooldown   Duration `yaml:"vision_cooldown"`
	HoverInterval    Duration `yaml:"hover_interval"`
	LandRetries      int      `yaml:"land_retries"`
	LandRetryDelay   Duration `yaml:"land_retry_delay"`
}

// SafetyConfig tunes the supervisor watchdogs.
type SafetyConfig struct {
	BatteryLow       int      `yaml:"battery_low"`
	BatteryCritical  int      `yaml:"battery_critical"`
	TelemetryTimeout Duration `yaml:"telemetry_timeout"`
	CheckInterval    Duration `yaml:"check_interval"`
}

// EngineConfig tunes the event loop.
type EngineConfig struct {
	QueueSize   int    `yaml:"queue_size"`
	DefaultMode string `yaml:"default_mode"`
}

// BridgeConfig points at the external recognizer process.
type BridgeConfig struct {
	URL string `yaml:"url"`
}

// VLMConfig points at the vision-language backend.
type VLMConfig struct {
	BaseURL   string   `yaml:"base_url"`
	APIKey    string   `yaml:"api_key"`
	Model     string   `yaml:"model"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

// WebConfig controls the dashboard server.
type WebConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// OpsConfig controls the health and metrics endpoint.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration tuned on the original airframe. Every
// value can be overridden by YAML and, for the deployment knobs, by
// environment variables.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LevelInfo},
		Vehicle: VehicleConfig{
			Addr:           "192.168.10.1:8889",
			StateAddr:      ":8890",
			CommandTimeout: Duration(7 * time.Second),
		},
		Debounce: DebounceConfig{
			HoldFrames:         5,
			Confidence:         0.90,
			GestureMinInterval: Duration(500 * time.Millisecond),
			VoiceMinInterval:   Duration(500 * time.Millisecond),
		},
		Dispatch: DispatchConfig{
			MoveDistanceCM:   30,
			RotateDegrees:    45,
			MovementCooldown: Duration(500 * time.Millisecond),
			VisionCooldown:   Duration(3 * time.Second),
			HoverInterval:    Duration(2 * time.Second),
			LandRetries:      3,
			LandRetryDelay:   Duration(500 * time.Millisecond),
		},
		Safety: SafetyConfig{
			BatteryLow:       15,
			BatteryCritical:  10,
			TelemetryTimeout: Duration(5 * time.Second),
			CheckInterval:    Duration(time.Second),
		},
		Engine: EngineConfig{
			QueueSize:   256,
			DefaultMode: "idle",
		},
		Bridge: BridgeConfig{
			URL: "ws://localhost:8765/events",
		},
		VLM: VLMConfig{
			BaseURL:   "http://localhost:11434/v1",
			Model:     "llava",
			MaxTokens: 500,
			Timeout:   Duration(120 * time.Second),
		},
		Web: WebConfig{
			Addr:      ":8080",
			StaticDir: "./web",
		},
		Ops: OpsConfig{
			Addr: ":9090",
		},
	}
}
