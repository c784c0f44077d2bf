package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical experiment defaults file.
const DefaultConfigPath = "config/pendulum.defaults.json"

// Sample feed sources.
const (
	SourceSerial    = "serial"
	SourceMQTT      = "mqtt"
	SourceSynthetic = "synthetic"
)

// ExperimentConfig is the root configuration for an acquisition run. Every
// field is optional; the Get* methods supply defaults for missing values so
// partial files are safe.
type ExperimentConfig struct {
	// Physical setup
	PendulumLengthM *float64 `json:"pendulum_length_m,omitempty"`
	PixelsPerMeter  *float64 `json:"pixels_per_meter,omitempty"`
	PositionScale   *float64 `json:"position_scale,omitempty"`

	// Acquisition
	FrameRate         *float64 `json:"frame_rate,omitempty"`
	WarmupFrames      *int     `json:"warmup_frames,omitempty"`
	MovementTolerance *float64 `json:"movement_tolerance,omitempty"`
	MinPeakGap        *string  `json:"min_peak_gap,omitempty"` // duration string like "200ms"

	// Feed
	Source *string       `json:"source,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty"`

	// Outputs
	DBPath  *string `json:"db_path,omitempty"`
	PlotDir *string `json:"plot_dir,omitempty"`
}

// SerialConfig describes the serial line the tracker writes samples to.
type SerialConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// MQTTConfig describes the broker and topic the tracker publishes samples on.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
	QoS      byte   `json:"qos"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExperimentConfig returns an ExperimentConfig with all fields unset.
func EmptyExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{}
}

// DefaultExperimentConfig returns a config with every field populated with
// its default value.
func DefaultExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{
		PendulumLengthM:   ptrFloat64(0.5),
		PixelsPerMeter:    ptrFloat64(1000),
		PositionScale:     ptrFloat64(100),
		FrameRate:         ptrFloat64(30),
		WarmupFrames:      ptrInt(7),
		MovementTolerance: ptrFloat64(5),
		MinPeakGap:        ptrString("200ms"),
		Source:            ptrString(SourceSerial),
		Serial:            defaultSerial(),
		MQTT:              defaultMQTT(),
		DBPath:            ptrString("pendulum.db"),
		PlotDir:           ptrString("plots"),
	}
}

func defaultSerial() *SerialConfig {
	return &SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
}

func defaultMQTT() *MQTTConfig {
	return &MQTTConfig{Broker: "tcp://localhost:1883", Topic: "pendulum/samples", ClientID: "pendulum-report"}
}

// LoadExperimentConfig loads an ExperimentConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExperimentConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *ExperimentConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadExperimentConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *ExperimentConfig) Validate() error {
	if c.PendulumLengthM != nil && *c.PendulumLengthM < 0 {
		return fmt.Errorf("pendulum_length_m must be non-negative, got %f", *c.PendulumLengthM)
	}
	if c.PixelsPerMeter != nil && *c.PixelsPerMeter <= 0 {
		return fmt.Errorf("pixels_per_meter must be positive, got %f", *c.PixelsPerMeter)
	}
	if c.PositionScale != nil && *c.PositionScale <= 0 {
		return fmt.Errorf("position_scale must be positive, got %f", *c.PositionScale)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.WarmupFrames != nil && *c.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must be non-negative, got %d", *c.WarmupFrames)
	}
	if c.MovementTolerance != nil && *c.MovementTolerance < 0 {
		return fmt.Errorf("movement_tolerance must be non-negative, got %f", *c.MovementTolerance)
	}

	if c.MinPeakGap != nil && *c.MinPeakGap != "" {
		d, err := time.ParseDuration(*c.MinPeakGap)
		if err != nil {
			return fmt.Errorf("invalid min_peak_gap '%s': %w", *c.MinPeakGap, err)
		}
		if d <= 0 {
			return fmt.Errorf("min_peak_gap must be positive, got %s", d)
		}
	}

	if c.Source != nil {
		switch *c.Source {
		case SourceSerial, SourceMQTT, SourceSynthetic:
		default:
			return fmt.Errorf("unknown source %q: expected %s, %s or %s", *c.Source, SourceSerial, SourceMQTT, SourceSynthetic)
		}
	}

	if c.MQTT != nil && c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	return nil
}

// GetPendulumLengthM returns the pendulum length in metres or the default.
func (c *ExperimentConfig) GetPendulumLengthM() float64 {
	if c.PendulumLengthM == nil {
		return 0.5
	}
	return *c.PendulumLengthM
}

// GetPixelsPerMeter returns the camera scale or the default.
func (c *ExperimentConfig) GetPixelsPerMeter() float64 {
	if c.PixelsPerMeter == nil {
		return 1000
	}
	return *c.PixelsPerMeter
}

// GetPositionScale returns the multiplier applied after converting pixels to
// metres, or the default.
func (c *ExperimentConfig) GetPositionScale() float64 {
	if c.PositionScale == nil {
		return 100
	}
	return *c.PositionScale
}

// GetFrameRate returns the tracker frame rate in Hz or the default.
func (c *ExperimentConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetWarmupFrames returns the number of leading frames to discard.
func (c *ExperimentConfig) GetWarmupFrames() int {
	if c.WarmupFrames == nil {
		return 7
	}
	return *c.WarmupFrames
}

// GetMovementTolerance returns the displacement that starts peak detection.
func (c *ExperimentConfig) GetMovementTolerance() float64 {
	if c.MovementTolerance == nil {
		return 5
	}
	return *c.MovementTolerance
}

// GetMinPeakGap parses and returns MinPeakGap as a time.Duration.
func (c *ExperimentConfig) GetMinPeakGap() time.Duration {
	if c.MinPeakGap == nil || *c.MinPeakGap == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MinPeakGap)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetSource returns the configured sample source or the default.
func (c *ExperimentConfig) GetSource() string {
	if c.Source == nil || *c.Source == "" {
		return SourceSerial
	}
	return *c.Source
}

// GetSerial returns the serial settings with defaults for unset fields.
func (c *ExperimentConfig) GetSerial() SerialConfig {
	out := *defaultSerial()
	if c.Serial == nil {
		return out
	}
	if c.Serial.Port != "" {
		out.Port = c.Serial.Port
	}
	if c.Serial.BaudRate > 0 {
		out.BaudRate = c.Serial.BaudRate
	}
	if c.Serial.DataBits > 0 {
		out.DataBits = c.Serial.DataBits
	}
	if c.Serial.StopBits > 0 {
		out.StopBits = c.Serial.StopBits
	}
	if c.Serial.Parity != "" {
		out.Parity = c.Serial.Parity
	}
	return out
}

// GetMQTT returns the MQTT settings with defaults for unset fields.
func (c *ExperimentConfig) GetMQTT() MQTTConfig {
	out := *defaultMQTT()
	if c.MQTT == nil {
		return out
	}
	if c.MQTT.Broker != "" {
		out.Broker = c.MQTT.Broker
	}
	if c.MQTT.Topic != "" {
		out.Topic = c.MQTT.Topic
	}
	if c.MQTT.ClientID != "" {
		out.ClientID = c.MQTT.ClientID
	}
	out.QoS = c.MQTT.QoS
	return out
}

// GetDBPath returns the sqlite database path or the default.
func (c *ExperimentConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "pendulum.db"
	}
	return *c.DBPath
}

// GetPlotDir returns the directory for run plots or the default.
func (c *ExperimentConfig) GetPlotDir() string {
	if c.PlotDir == nil || *c.PlotDir == "" {
		return "plots"
	}
	return *c.PlotDir
}
