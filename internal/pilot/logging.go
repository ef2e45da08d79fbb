package pilot

import (
	"github.com/banshee-data/lanepilot/internal/actuation"
	"github.com/banshee-data/lanepilot/internal/announce"
	"github.com/banshee-data/lanepilot/internal/api"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/classify"
	"github.com/banshee-data/lanepilot/internal/control"
	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/health"
	"github.com/banshee-data/lanepilot/internal/mission"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// ConfigureLogging routes the ops/diag/trace streams of every package.
func ConfigureLogging(w monitoring.LogWriters) {
	SetLogWriters(w)
	actuation.SetLogWriters(w)
	announce.SetLogWriters(w)
	api.SetLogWriters(w)
	camera.SetLogWriters(w)
	classify.SetLogWriters(w)
	control.SetLogWriters(w)
	db.SetLogWriters(w)
	health.SetLogWriters(w)
	mission.SetLogWriters(w)
	perception.SetLogWriters(w)
}
