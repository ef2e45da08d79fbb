package api

import (
	"time"

	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/queue"
)

// Snapshot is the /api/status document.
type Snapshot struct {
	Version      string                   `json:"version"`
	RunID        string                   `json:"run_id,omitempty"`
	Mode         string                   `json:"mode"`
	Uptime       string                   `json:"uptime"`
	Mission      mission.Status           `json:"mission"`
	Capture      camera.SourceStats       `json:"capture"`
	Processing   perception.PipelineStats `json:"processing"`
	Observations queue.Stats              `json:"observations"`
	Recorder     *db.RecorderStats        `json:"recorder,omitempty"`
	Outputs      Outputs                  `json:"outputs"`
}

// Outputs are the actuator values last written.
type Outputs struct {
	SteeringDegrees float64 `json:"steering_degrees"`
	MotorLevel      int     `json:"motor_level"`
}

// FormatUptime renders d rounded to the second.
func FormatUptime(d time.Duration) string {
	return d.Round(time.Second).String()
}
