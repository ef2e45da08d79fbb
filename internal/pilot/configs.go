package pilot

import (
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/control"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// SourceConfig maps the capture tunables.
func SourceConfig(t *config.TuningConfig) camera.SourceConfig {
	return camera.SourceConfig{
		Settings: camera.Settings{
			Width:       t.GetFrameWidth(),
			Height:      t.GetFrameHeight(),
			FPS:         t.GetFrameRate(),
			BufferDepth: 1,
		},
		QueueDepth:   t.GetFrameQueueDepth(),
		RetryBackoff: t.GetCameraRetryBackoff(),
	}
}

// Filter maps the pixel thresholds.
func Filter(t *config.TuningConfig) perception.ThresholdFilter {
	return perception.ThresholdFilter{
		Brightness: uint8(t.GetLaneBrightnessThreshold()),
		Barrier: perception.HSVRange{
			HueMin: t.GetBarrierHueMin(),
			HueMax: t.GetBarrierHueMax(),
			SatMin: t.GetBarrierSatMin(),
			ValMin: t.GetBarrierValMin(),
		},
	}
}

// PipelineConfig maps the scanner and detector tunables.
func PipelineConfig(t *config.TuningConfig) perception.PipelineConfig {
	return perception.PipelineConfig{
		Scanner: perception.LaneScanner{
			RowFraction: t.GetScanRowFraction(),
			Lookahead:   t.GetScanLookahead(),
		},
		Barrier: perception.BarrierConfig{
			AreaThreshold: t.GetBarrierAreaThreshold(),
			RowMin:        t.GetBarrierRowMin(),
			RowMax:        t.GetBarrierRowMax(),
			MissCount:     t.GetBarrierMissCount(),
		},
		Crossing: perception.CrossingConfig{
			RowStep:        t.GetCrossingRowStep(),
			MinStripeWidth: t.GetCrossingMinStripeWidth(),
			MaxStripeWidth: t.GetCrossingMaxStripeWidth(),
			MinStripes:     t.GetCrossingMinStripes(),
			RowStreak:      t.GetCrossingRowStreak(),
			FrameStreak:    t.GetCrossingFrameStreak(),
		},
		CrossingROI:        t.GetCrossingROIFraction(),
		ClassifierInterval: t.GetClassifierInterval(),
		StatsEvery:         t.GetStatsEveryFrames(),
	}
}

// PIDConfig maps the steering controller tunables.
func PIDConfig(t *config.TuningConfig) control.PIDConfig {
	return control.PIDConfig{
		Kp:        t.GetPIDKp(),
		Ki:        t.GetPIDKi(),
		Kd:        t.GetPIDKd(),
		Min:       t.GetSteeringMinDeg(),
		Max:       t.GetSteeringMaxDeg(),
		DefaultDT: t.GetPIDDefaultDT(),
	}
}

// GovernorConfig maps the motor ramp tunables.
func GovernorConfig(t *config.TuningConfig) control.GovernorConfig {
	return control.GovernorConfig{
		MaxLevel:  t.GetMotorMaxLevel(),
		RampFloor: t.GetMotorRampFloor(),
		RampStep:  t.GetMotorRampStep(),
		RampDelay: t.GetMotorRampDelay(),
	}
}

// MissionConfig maps the state machine tunables.
func MissionConfig(t *config.TuningConfig) mission.Config {
	return mission.Config{
		CruiseLevel:     t.GetMotorCruiseLevel(),
		StationaryLevel: t.GetMotorStationaryLevel(),
		HoldDuration:    t.GetCrossingHoldDuration(),
	}
}
