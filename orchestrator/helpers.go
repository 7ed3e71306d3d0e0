package orchestrator

import (
	"fmt"

	"github.com/maastricht-university/sleepsense/clients"
	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/insights"
)

// stage prefixes err with the stage name unless the error already says
// which stage it came from.
func stage(name string, err error) error {
	if e, ok := err.(*errs.Error); ok && e.Stage == name {
		return err
	}
	return fmt.Errorf("%s: %w", name, err)
}

// mergeContext layers overrides on top of fetched values. It returns nil
// when both are empty so absent context stays absent.
func mergeContext(fetched, overrides map[string]float64) map[string]float64 {
	if len(fetched) == 0 && len(overrides) == 0 {
		return nil
	}
	out := make(map[string]float64, len(fetched)+len(overrides))
	for k, v := range fetched {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// timelineRequest lists disturbances only; silence would drown the chart.
func timelineRequest(evs []event.Event, outDir string) clients.TimelineReq {
	req := clients.TimelineReq{OutputDir: outDir}
	for _, ev := range evs {
		if !ev.Category.Disturbance() {
			continue
		}
		req.Timestamps = append(req.Timestamps, ev.Start)
		req.Durations = append(req.Durations, ev.Duration)
		req.Categories = append(req.Categories, string(ev.Category))
		req.Volumes = append(req.Volumes, ev.PeakVolume)
	}
	return req
}

func radarRequest(s insights.Summary, outDir string) clients.RadarReq {
	req := clients.RadarReq{Title: "Share of the night", OutputDir: outDir}
	for _, c := range event.Categories {
		req.Categories = append(req.Categories, c.Label())
		req.Values = append(req.Values, s.Stats(c).Percent)
	}
	return req
}
