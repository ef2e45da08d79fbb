package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the control loop
// tunables. Every field is optional: unset fields fall back to the defaults
// returned by the Get* accessors, so partial files are safe.
type TuningConfig struct {
	// Steering controller
	PIDKp          *float64 `json:"pid_kp,omitempty" yaml:"pid_kp,omitempty"`
	PIDKi          *float64 `json:"pid_ki,omitempty" yaml:"pid_ki,omitempty"`
	PIDKd          *float64 `json:"pid_kd,omitempty" yaml:"pid_kd,omitempty"`
	PIDDefaultDT   *string  `json:"pid_default_dt,omitempty" yaml:"pid_default_dt,omitempty"` // duration string like "20ms"
	SteeringMinDeg *float64 `json:"steering_min_deg,omitempty" yaml:"steering_min_deg,omitempty"`
	SteeringMaxDeg *float64 `json:"steering_max_deg,omitempty" yaml:"steering_max_deg,omitempty"`

	// Drive governor
	MotorStationaryLevel *int    `json:"motor_stationary_level,omitempty" yaml:"motor_stationary_level,omitempty"`
	MotorRampFloor       *int    `json:"motor_ramp_floor,omitempty" yaml:"motor_ramp_floor,omitempty"`
	MotorCruiseLevel     *int    `json:"motor_cruise_level,omitempty" yaml:"motor_cruise_level,omitempty"`
	MotorMaxLevel        *int    `json:"motor_max_level,omitempty" yaml:"motor_max_level,omitempty"`
	MotorRampStep        *int    `json:"motor_ramp_step,omitempty" yaml:"motor_ramp_step,omitempty"`
	MotorRampDelay       *string `json:"motor_ramp_delay,omitempty" yaml:"motor_ramp_delay,omitempty"`

	// Queues and task timing
	FrameQueueDepth       *int    `json:"frame_queue_depth,omitempty" yaml:"frame_queue_depth,omitempty"`
	ObservationQueueDepth *int    `json:"observation_queue_depth,omitempty" yaml:"observation_queue_depth,omitempty"`
	DequeueTimeout        *string `json:"dequeue_timeout,omitempty" yaml:"dequeue_timeout,omitempty"`

	// Camera
	FrameWidth         *int    `json:"frame_width,omitempty" yaml:"frame_width,omitempty"`
	FrameHeight        *int    `json:"frame_height,omitempty" yaml:"frame_height,omitempty"`
	FrameRate          *int    `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	CameraRetryBackoff *string `json:"camera_retry_backoff,omitempty" yaml:"camera_retry_backoff,omitempty"`

	// Lane scanner
	ScanRowFraction         *float64 `json:"scan_row_fraction,omitempty" yaml:"scan_row_fraction,omitempty"`
	ScanLookahead           *int     `json:"scan_lookahead,omitempty" yaml:"scan_lookahead,omitempty"`
	LaneBrightnessThreshold *int     `json:"lane_brightness_threshold,omitempty" yaml:"lane_brightness_threshold,omitempty"`

	// Barrier detector (hue in degrees, saturation/value in [0,1])
	BarrierHueMin        *float64 `json:"barrier_hue_min,omitempty" yaml:"barrier_hue_min,omitempty"`
	BarrierHueMax        *float64 `json:"barrier_hue_max,omitempty" yaml:"barrier_hue_max,omitempty"`
	BarrierSatMin        *float64 `json:"barrier_sat_min,omitempty" yaml:"barrier_sat_min,omitempty"`
	BarrierValMin        *float64 `json:"barrier_val_min,omitempty" yaml:"barrier_val_min,omitempty"`
	BarrierAreaThreshold *int     `json:"barrier_area_threshold,omitempty" yaml:"barrier_area_threshold,omitempty"`
	BarrierRowMin        *float64 `json:"barrier_row_min,omitempty" yaml:"barrier_row_min,omitempty"` // fraction of height
	BarrierRowMax        *float64 `json:"barrier_row_max,omitempty" yaml:"barrier_row_max,omitempty"` // fraction of height
	BarrierMissCount     *int     `json:"barrier_miss_count,omitempty" yaml:"barrier_miss_count,omitempty"`

	// Crossing detector
	CrossingROIFraction  *float64 `json:"crossing_roi_fraction,omitempty" yaml:"crossing_roi_fraction,omitempty"`
	CrossingRowStep      *int     `json:"crossing_row_step,omitempty" yaml:"crossing_row_step,omitempty"`
	CrossingMinStripeW   *int     `json:"crossing_min_stripe_width,omitempty" yaml:"crossing_min_stripe_width,omitempty"`
	CrossingMaxStripeW   *int     `json:"crossing_max_stripe_width,omitempty" yaml:"crossing_max_stripe_width,omitempty"`
	CrossingMinStripes   *int     `json:"crossing_min_stripes,omitempty" yaml:"crossing_min_stripes,omitempty"`
	CrossingRowStreak    *int     `json:"crossing_row_streak,omitempty" yaml:"crossing_row_streak,omitempty"`
	CrossingFrameStreak  *int     `json:"crossing_frame_streak,omitempty" yaml:"crossing_frame_streak,omitempty"`
	CrossingHoldDuration *string  `json:"crossing_hold_duration,omitempty" yaml:"crossing_hold_duration,omitempty"`

	// Route classifier (optional collaborator)
	ClassifierTimeout  *string `json:"classifier_timeout,omitempty" yaml:"classifier_timeout,omitempty"`
	ClassifierInterval *int    `json:"classifier_interval,omitempty" yaml:"classifier_interval,omitempty"` // frames; 0 disables

	// Diagnostics
	StatsEveryFrames *int `json:"stats_every_frames,omitempty" yaml:"stats_every_frames,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

func getOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		PIDKp:          ptrFloat64(c.GetPIDKp()),
		PIDKi:          ptrFloat64(c.GetPIDKi()),
		PIDKd:          ptrFloat64(c.GetPIDKd()),
		PIDDefaultDT:   ptrString(c.GetPIDDefaultDT().String()),
		SteeringMinDeg: ptrFloat64(c.GetSteeringMinDeg()),
		SteeringMaxDeg: ptrFloat64(c.GetSteeringMaxDeg()),

		MotorStationaryLevel: ptrInt(c.GetMotorStationaryLevel()),
		MotorRampFloor:       ptrInt(c.GetMotorRampFloor()),
		MotorCruiseLevel:     ptrInt(c.GetMotorCruiseLevel()),
		MotorMaxLevel:        ptrInt(c.GetMotorMaxLevel()),
		MotorRampStep:        ptrInt(c.GetMotorRampStep()),
		MotorRampDelay:       ptrString(c.GetMotorRampDelay().String()),

		FrameQueueDepth:       ptrInt(c.GetFrameQueueDepth()),
		ObservationQueueDepth: ptrInt(c.GetObservationQueueDepth()),
		DequeueTimeout:        ptrString(c.GetDequeueTimeout().String()),

		FrameWidth:         ptrInt(c.GetFrameWidth()),
		FrameHeight:        ptrInt(c.GetFrameHeight()),
		FrameRate:          ptrInt(c.GetFrameRate()),
		CameraRetryBackoff: ptrString(c.GetCameraRetryBackoff().String()),

		ScanRowFraction:         ptrFloat64(c.GetScanRowFraction()),
		ScanLookahead:           ptrInt(c.GetScanLookahead()),
		LaneBrightnessThreshold: ptrInt(c.GetLaneBrightnessThreshold()),

		BarrierHueMin:        ptrFloat64(c.GetBarrierHueMin()),
		BarrierHueMax:        ptrFloat64(c.GetBarrierHueMax()),
		BarrierSatMin:        ptrFloat64(c.GetBarrierSatMin()),
		BarrierValMin:        ptrFloat64(c.GetBarrierValMin()),
		BarrierAreaThreshold: ptrInt(c.GetBarrierAreaThreshold()),
		BarrierRowMin:        ptrFloat64(c.GetBarrierRowMin()),
		BarrierRowMax:        ptrFloat64(c.GetBarrierRowMax()),
		BarrierMissCount:     ptrInt(c.GetBarrierMissCount()),

		CrossingROIFraction:  ptrFloat64(c.GetCrossingROIFraction()),
		CrossingRowStep:      ptrInt(c.GetCrossingRowStep()),
		CrossingMinStripeW:   ptrInt(c.GetCrossingMinStripeWidth()),
		CrossingMaxStripeW:   ptrInt(c.GetCrossingMaxStripeWidth()),
		CrossingMinStripes:   ptrInt(c.GetCrossingMinStripes()),
		CrossingRowStreak:    ptrInt(c.GetCrossingRowStreak()),
		CrossingFrameStreak:  ptrInt(c.GetCrossingFrameStreak()),
		CrossingHoldDuration: ptrString(c.GetCrossingHoldDuration().String()),

		ClassifierTimeout:  ptrString(c.GetClassifierTimeout().String()),
		ClassifierInterval: ptrInt(c.GetClassifierInterval()),

		StatsEveryFrames: ptrInt(c.GetStatsEveryFrames()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file is validated to ensure it has a supported extension and is under
// the max file size. Fields omitted from the file retain their default values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*string{
		"pid_default_dt":         c.PIDDefaultDT,
		"motor_ramp_delay":       c.MotorRampDelay,
		"dequeue_timeout":        c.DequeueTimeout,
		"camera_retry_backoff":   c.CameraRetryBackoff,
		"crossing_hold_duration": c.CrossingHoldDuration,
		"classifier_timeout":     c.ClassifierTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.GetSteeringMinDeg() >= c.GetSteeringMaxDeg() {
		return fmt.Errorf("steering_min_deg (%g) must be below steering_max_deg (%g)",
			c.GetSteeringMinDeg(), c.GetSteeringMaxDeg())
	}

	if c.GetMotorMaxLevel() <= 0 {
		return fmt.Errorf("motor_max_level must be positive, got %d", c.GetMotorMaxLevel())
	}
	for name, level := range map[string]int{
		"motor_stationary_level": c.GetMotorStationaryLevel(),
		"motor_ramp_floor":       c.GetMotorRampFloor(),
		"motor_cruise_level":     c.GetMotorCruiseLevel(),
	} {
		if level < 0 || level > c.GetMotorMaxLevel() {
			return fmt.Errorf("%s must be between 0 and motor_max_level (%d), got %d", name, c.GetMotorMaxLevel(), level)
		}
	}
	if c.GetMotorRampStep() <= 0 {
		return fmt.Errorf("motor_ramp_step must be positive, got %d", c.GetMotorRampStep())
	}

	if d := c.GetFrameQueueDepth(); d < 1 || d > 2 {
		return fmt.Errorf("frame_queue_depth must be 1 or 2, got %d", d)
	}
	if d := c.GetObservationQueueDepth(); d < 1 {
		return fmt.Errorf("observation_queue_depth must be positive, got %d", d)
	}

	if c.GetFrameWidth() <= 0 || c.GetFrameHeight() <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.GetFrameWidth(), c.GetFrameHeight())
	}
	if c.GetFrameRate() <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.GetFrameRate())
	}

	if f := c.GetScanRowFraction(); f < 0 || f >= 1 {
		return fmt.Errorf("scan_row_fraction must be in [0,1), got %f", f)
	}
	if c.GetScanLookahead() <= 0 {
		return fmt.Errorf("scan_lookahead must be positive, got %d", c.GetScanLookahead())
	}

	if c.GetBarrierRowMin() < 0 || c.GetBarrierRowMax() > 1 || c.GetBarrierRowMin() >= c.GetBarrierRowMax() {
		return fmt.Errorf("barrier row band [%f,%f] must lie within [0,1] and be non-empty",
			c.GetBarrierRowMin(), c.GetBarrierRowMax())
	}
	if c.GetBarrierMissCount() <= 0 {
		return fmt.Errorf("barrier_miss_count must be positive, got %d", c.GetBarrierMissCount())
	}

	if f := c.GetCrossingROIFraction(); f < 0 || f >= 1 {
		return fmt.Errorf("crossing_roi_fraction must be in [0,1), got %f", f)
	}
	if c.GetCrossingMinStripeWidth() <= 0 || c.GetCrossingMinStripeWidth() > c.GetCrossingMaxStripeWidth() {
		return fmt.Errorf("crossing stripe width band [%d,%d] is invalid",
			c.GetCrossingMinStripeWidth(), c.GetCrossingMaxStripeWidth())
	}
	for name, v := range map[string]int{
		"crossing_row_step":     c.GetCrossingRowStep(),
		"crossing_min_stripes":  c.GetCrossingMinStripes(),
		"crossing_row_streak":   c.GetCrossingRowStreak(),
		"crossing_frame_streak": c.GetCrossingFrameStreak(),
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}

	if c.GetClassifierInterval() < 0 {
		return fmt.Errorf("classifier_interval must be non-negative, got %d", c.GetClassifierInterval())
	}

	return nil
}

// GetPIDKp returns the pid_kp value or the default.
func (c *TuningConfig) GetPIDKp() float64 { return getOr(c.PIDKp, 0.25) }

// GetPIDKi returns the pid_ki value or the default.
func (c *TuningConfig) GetPIDKi() float64 { return getOr(c.PIDKi, 0.0) }

// GetPIDKd returns the pid_kd value or the default.
func (c *TuningConfig) GetPIDKd() float64 { return getOr(c.PIDKd, 0.125) }

// GetPIDDefaultDT returns the dt substituted on the first PID update or when
// the measured interval is not positive.
func (c *TuningConfig) GetPIDDefaultDT() time.Duration {
	return durationOr(c.PIDDefaultDT, 20*time.Millisecond)
}

// GetSteeringMinDeg returns the steering_min_deg value or the default.
func (c *TuningConfig) GetSteeringMinDeg() float64 { return getOr(c.SteeringMinDeg, -30) }

// GetSteeringMaxDeg returns the steering_max_deg value or the default.
func (c *TuningConfig) GetSteeringMaxDeg() float64 { return getOr(c.SteeringMaxDeg, 30) }

// GetMotorStationaryLevel returns the level that holds the vehicle still.
func (c *TuningConfig) GetMotorStationaryLevel() int { return getOr(c.MotorStationaryLevel, 10000) }

// GetMotorRampFloor returns the level at which acceleration ramps start.
func (c *TuningConfig) GetMotorRampFloor() int { return getOr(c.MotorRampFloor, 10800) }

// GetMotorCruiseLevel returns the nominal tracking level.
func (c *TuningConfig) GetMotorCruiseLevel() int { return getOr(c.MotorCruiseLevel, 11000) }

// GetMotorMaxLevel returns the motor_max_level value or the default.
func (c *TuningConfig) GetMotorMaxLevel() int { return getOr(c.MotorMaxLevel, 13000) }

// GetMotorRampStep returns the motor_ramp_step value or the default.
func (c *TuningConfig) GetMotorRampStep() int { return getOr(c.MotorRampStep, 50) }

// GetMotorRampDelay returns the delay between ramp writes.
func (c *TuningConfig) GetMotorRampDelay() time.Duration {
	return durationOr(c.MotorRampDelay, 20*time.Millisecond)
}

// GetFrameQueueDepth returns the frame_queue_depth value or the default.
func (c *TuningConfig) GetFrameQueueDepth() int { return getOr(c.FrameQueueDepth, 1) }

// GetObservationQueueDepth returns the observation_queue_depth value or the default.
func (c *TuningConfig) GetObservationQueueDepth() int { return getOr(c.ObservationQueueDepth, 2) }

// GetDequeueTimeout returns the bound on every blocking queue read.
func (c *TuningConfig) GetDequeueTimeout() time.Duration {
	return durationOr(c.DequeueTimeout, 100*time.Millisecond)
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int { return getOr(c.FrameWidth, 320) }

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int { return getOr(c.FrameHeight, 240) }

// GetFrameRate returns the target capture rate in frames per second.
func (c *TuningConfig) GetFrameRate() int { return getOr(c.FrameRate, 30) }

// GetCameraRetryBackoff returns the pause after a failed camera read.
func (c *TuningConfig) GetCameraRetryBackoff() time.Duration {
	return durationOr(c.CameraRetryBackoff, 50*time.Millisecond)
}

// GetScanRowFraction returns the scan_row_fraction value or the default.
func (c *TuningConfig) GetScanRowFraction() float64 { return getOr(c.ScanRowFraction, 0.5) }

// GetScanLookahead returns the scan_lookahead value or the default.
func (c *TuningConfig) GetScanLookahead() int { return getOr(c.ScanLookahead, 5) }

// GetLaneBrightnessThreshold returns the lane_brightness_threshold value or the default.
func (c *TuningConfig) GetLaneBrightnessThreshold() int {
	return getOr(c.LaneBrightnessThreshold, 200)
}

// GetBarrierHueMin returns the barrier_hue_min value or the default.
func (c *TuningConfig) GetBarrierHueMin() float64 { return getOr(c.BarrierHueMin, 200) }

// GetBarrierHueMax returns the barrier_hue_max value or the default.
func (c *TuningConfig) GetBarrierHueMax() float64 { return getOr(c.BarrierHueMax, 250) }

// GetBarrierSatMin returns the barrier_sat_min value or the default.
func (c *TuningConfig) GetBarrierSatMin() float64 { return getOr(c.BarrierSatMin, 0.35) }

// GetBarrierValMin returns the barrier_val_min value or the default.
func (c *TuningConfig) GetBarrierValMin() float64 { return getOr(c.BarrierValMin, 0.2) }

// GetBarrierAreaThreshold returns the barrier_area_threshold value or the default.
func (c *TuningConfig) GetBarrierAreaThreshold() int { return getOr(c.BarrierAreaThreshold, 5000) }

// GetBarrierRowMin returns the barrier_row_min value or the default.
func (c *TuningConfig) GetBarrierRowMin() float64 { return getOr(c.BarrierRowMin, 0.0) }

// GetBarrierRowMax returns the barrier_row_max value or the default.
func (c *TuningConfig) GetBarrierRowMax() float64 { return getOr(c.BarrierRowMax, 1.0) }

// GetBarrierMissCount returns the barrier_miss_count value or the default.
func (c *TuningConfig) GetBarrierMissCount() int { return getOr(c.BarrierMissCount, 3) }

// GetCrossingROIFraction returns the crossing_roi_fraction value or the default.
func (c *TuningConfig) GetCrossingROIFraction() float64 { return getOr(c.CrossingROIFraction, 0.6) }

// GetCrossingRowStep returns the crossing_row_step value or the default.
func (c *TuningConfig) GetCrossingRowStep() int { return getOr(c.CrossingRowStep, 2) }

// GetCrossingMinStripeWidth returns the crossing_min_stripe_width value or the default.
func (c *TuningConfig) GetCrossingMinStripeWidth() int { return getOr(c.CrossingMinStripeW, 4) }

// GetCrossingMaxStripeWidth returns the crossing_max_stripe_width value or the default.
func (c *TuningConfig) GetCrossingMaxStripeWidth() int { return getOr(c.CrossingMaxStripeW, 40) }

// GetCrossingMinStripes returns the crossing_min_stripes value or the default.
func (c *TuningConfig) GetCrossingMinStripes() int { return getOr(c.CrossingMinStripes, 4) }

// GetCrossingRowStreak returns the crossing_row_streak value or the default.
func (c *TuningConfig) GetCrossingRowStreak() int { return getOr(c.CrossingRowStreak, 5) }

// GetCrossingFrameStreak returns the crossing_frame_streak value or the default.
func (c *TuningConfig) GetCrossingFrameStreak() int { return getOr(c.CrossingFrameStreak, 3) }

// GetCrossingHoldDuration returns how long the vehicle waits at a crossing.
func (c *TuningConfig) GetCrossingHoldDuration() time.Duration {
	return durationOr(c.CrossingHoldDuration, 3*time.Second)
}

// GetClassifierTimeout returns the classifier_timeout value or the default.
func (c *TuningConfig) GetClassifierTimeout() time.Duration {
	return durationOr(c.ClassifierTimeout, 300*time.Millisecond)
}

// GetClassifierInterval returns how many frames pass between classifier
// calls. Zero disables the classifier.
func (c *TuningConfig) GetClassifierInterval() int { return getOr(c.ClassifierInterval, 0) }

// GetStatsEveryFrames returns the stats_every_frames value or the default.
func (c *TuningConfig) GetStatsEveryFrames() int { return getOr(c.StatsEveryFrames, 30) }
