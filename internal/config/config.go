package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/pressure.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Background modes accepted by initial_mode.
const (
	ModeCamera = "camera"
	ModeFlat   = "flat"
)

// Config holds the engine tuning. Every field is optional; the Get* methods
// return the default for fields left unset, so partial files are safe.
type Config struct {
	// Frame
	FrameWidth  *int `json:"frame_width,omitempty"`
	FrameHeight *int `json:"frame_height,omitempty"`

	// Scheduler
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "500ms"
	InitialMode  *string `json:"initial_mode,omitempty"`  // "camera" or "flat"

	// Mapper
	ActivityThreshold *float64 `json:"activity_threshold,omitempty"`
	JitterOffset      *int     `json:"jitter_offset,omitempty"`

	// Ledger
	LedgerCapacity *int    `json:"ledger_capacity,omitempty"`
	Window         *string `json:"window,omitempty"` // duration string like "5s"

	// Rasterizer
	StampRadius *int     `json:"stamp_radius,omitempty"`
	BlurSigma   *float64 `json:"blur_sigma,omitempty"`
	AlphaScale  *float64 `json:"alpha_scale,omitempty"`
	ColorMap    *string  `json:"color_map,omitempty"`

	// Zones
	ZoneThreshold *float64 `json:"zone_threshold,omitempty"`
	ZoneCount     *int     `json:"zone_count,omitempty"`
	ZoneMinPixels *int     `json:"zone_min_pixels,omitempty"`
	AnnotateZones *bool    `json:"annotate_zones,omitempty"`

	// Compositor
	BackgroundWeight *float64 `json:"background_weight,omitempty"`
	LayerWeight      *float64 `json:"layer_weight,omitempty"`

	// History
	SeriesLength *int `json:"series_length,omitempty"`

	// Event log
	FlushInterval      *string `json:"flush_interval,omitempty"` // duration string like "60s"
	FinalFlushAttempts *int    `json:"final_flush_attempts,omitempty"`

	// Sensor link
	BaudRate *int `json:"baud_rate,omitempty"`
}

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. It panics if the file cannot be found; intended for
// test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/camera/opencv/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	positive := map[string]*int{
		"frame_width":     c.FrameWidth,
		"frame_height":    c.FrameHeight,
		"ledger_capacity": c.LedgerCapacity,
		"zone_count":      c.ZoneCount,
		"series_length":   c.SeriesLength,
		"baud_rate":       c.BaudRate,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	nonNegative := map[string]*int{
		"jitter_offset":        c.JitterOffset,
		"stamp_radius":         c.StampRadius,
		"zone_min_pixels":      c.ZoneMinPixels,
		"final_flush_attempts": c.FinalFlushAttempts,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	durations := map[string]*string{
		"tick_interval":  c.TickInterval,
		"window":         c.Window,
		"flush_interval": c.FlushInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.ZoneThreshold != nil && (*c.ZoneThreshold <= 0 || *c.ZoneThreshold >= 1) {
		return fmt.Errorf("zone_threshold must be between 0 and 1, got %f", *c.ZoneThreshold)
	}
	if c.AlphaScale != nil && (*c.AlphaScale < 0 || *c.AlphaScale > 1) {
		return fmt.Errorf("alpha_scale must be between 0 and 1, got %f", *c.AlphaScale)
	}
	if c.BlurSigma != nil && *c.BlurSigma < 0 {
		return fmt.Errorf("blur_sigma must be non-negative, got %f", *c.BlurSigma)
	}
	if c.BackgroundWeight != nil && *c.BackgroundWeight < 0 {
		return fmt.Errorf("background_weight must be non-negative, got %f", *c.BackgroundWeight)
	}
	if c.LayerWeight != nil && *c.LayerWeight < 0 {
		return fmt.Errorf("layer_weight must be non-negative, got %f", *c.LayerWeight)
	}
	if c.InitialMode != nil {
		switch *c.InitialMode {
		case "", ModeCamera, ModeFlat:
		default:
			return fmt.Errorf("initial_mode must be %q or %q, got %q", ModeCamera, ModeFlat, *c.InitialMode)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetFrameWidth returns the frame_width value or the default.
func (c *Config) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *Config) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *Config) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 500*time.Millisecond)
}

// GetInitialMode returns the initial_mode value or the default.
func (c *Config) GetInitialMode() string {
	if c.InitialMode == nil || *c.InitialMode == "" {
		return ModeCamera
	}
	return *c.InitialMode
}

// GetActivityThreshold returns the activity_threshold value or the default.
func (c *Config) GetActivityThreshold() float64 {
	if c.ActivityThreshold == nil {
		return 5.0
	}
	return *c.ActivityThreshold
}

// GetJitterOffset returns the jitter_offset value or the default.
func (c *Config) GetJitterOffset() int {
	if c.JitterOffset == nil {
		return 40
	}
	return *c.JitterOffset
}

// GetLedgerCapacity returns the ledger_capacity value or the default.
func (c *Config) GetLedgerCapacity() int {
	if c.LedgerCapacity == nil {
		return 1000
	}
	return *c.LedgerCapacity
}

// GetWindow parses and returns the Window as a time.Duration.
func (c *Config) GetWindow() time.Duration {
	return durationOr(c.Window, 5*time.Second)
}

// GetStampRadius returns the stamp_radius value or the default.
func (c *Config) GetStampRadius() int {
	if c.StampRadius == nil {
		return 30
	}
	return *c.StampRadius
}

// GetBlurSigma returns the blur_sigma value or the default.
func (c *Config) GetBlurSigma() float64 {
	if c.BlurSigma == nil {
		return 12.0
	}
	return *c.BlurSigma
}

// GetAlphaScale returns the alpha_scale value or the default.
func (c *Config) GetAlphaScale() float64 {
	if c.AlphaScale == nil {
		return 0.6
	}
	return *c.AlphaScale
}

// GetColorMap returns the color_map name, empty meaning jet.
func (c *Config) GetColorMap() string {
	if c.ColorMap == nil {
		return ""
	}
	return *c.ColorMap
}

// GetZoneThreshold returns the zone_threshold value or the default.
func (c *Config) GetZoneThreshold() float64 {
	if c.ZoneThreshold == nil {
		return 0.6
	}
	return *c.ZoneThreshold
}

// GetZoneCount returns the zone_count value or the default.
func (c *Config) GetZoneCount() int {
	if c.ZoneCount == nil {
		return 3
	}
	return *c.ZoneCount
}

// GetZoneMinPixels returns the zone_min_pixels value or the default.
func (c *Config) GetZoneMinPixels() int {
	if c.ZoneMinPixels == nil {
		return 0
	}
	return *c.ZoneMinPixels
}

// GetAnnotateZones returns the annotate_zones value or the default.
func (c *Config) GetAnnotateZones() bool {
	if c.AnnotateZones == nil {
		return true
	}
	return *c.AnnotateZones
}

// GetBackgroundWeight returns the background_weight value or the default.
func (c *Config) GetBackgroundWeight() float64 {
	if c.BackgroundWeight == nil {
		return 0.7
	}
	return *c.BackgroundWeight
}

// GetLayerWeight returns the layer_weight value or the default.
func (c *Config) GetLayerWeight() float64 {
	if c.LayerWeight == nil {
		return 0.8
	}
	return *c.LayerWeight
}

// GetSeriesLength returns the series_length value or the default.
func (c *Config) GetSeriesLength() int {
	if c.SeriesLength == nil {
		return 100
	}
	return *c.SeriesLength
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return durationOr(c.FlushInterval, 60*time.Second)
}

// GetFinalFlushAttempts returns the final_flush_attempts value or the default.
func (c *Config) GetFinalFlushAttempts() int {
	if c.FinalFlushAttempts == nil {
		return 3
	}
	return *c.FinalFlushAttempts
}

// GetBaudRate returns the baud_rate value or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 9600
	}
	return *c.BaudRate
}
