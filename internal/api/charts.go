package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showRunChart renders lane offset, steering and motor level against frame
// sequence for one run.
func (s *Server) showRunChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	ticks, err := s.store.Ticks(r.Context(), run.ID, 0)
	if err != nil {
		httputil.InternalServerError(w, "retrieve ticks", err)
		return
	}

	page, err := runChartPage(run, ticks)
	if err != nil {
		httputil.InternalServerError(w, "build chart", err)
		return
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, "render chart", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func runChartPage(run db.Run, ticks []db.TickRow) (*components.Page, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("run %s has no ticks", run.ID)
	}

	x := make([]uint64, len(ticks))
	offset := make([]opts.LineData, len(ticks))
	steer := make([]opts.LineData, len(ticks))
	motor := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		x[i] = t.FrameSeq
		if t.LaneValid {
			offset[i] = opts.LineData{Value: t.LaneOffset}
		} else {
			offset[i] = opts.LineData{Value: "-"}
		}
		steer[i] = opts.LineData{Value: t.SteeringDegrees}
		motor[i] = opts.LineData{Value: t.MotorLevel}
	}
	subtitle := fmt.Sprintf("run=%s mode=%s ticks=%d", run.ID, run.Mode, len(ticks))

	steering := charts.NewLine()
	steering.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Run " + run.ID, Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Lane offset and steering", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	steering.SetXAxis(x).
		AddSeries("lane offset (px)", offset).
		AddSeries("steering (deg)", steer)

	throttle := charts.NewLine()
	throttle.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Motor level"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	throttle.SetXAxis(x).
		AddSeries("motor", motor, charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(steering, throttle)
	return page, nil
}
