// Package insights turns a night of classified events into a summary and a
// ranked list of human-readable findings.
package insights

import (
	"math"
	"sort"

	"github.com/maastricht-university/sleepsense/event"
)

// CategoryStats aggregates the events of one category.
type CategoryStats struct {
	Count   int     `json:"count" yaml:"count" msgpack:"count"`
	Seconds float64 `json:"seconds" yaml:"seconds" msgpack:"seconds"`
	// Percent of the recording covered by the category.
	Percent float64 `json:"percent" yaml:"percent" msgpack:"percent"`
}

// Summary is the per-night aggregate the insight rules read.
type Summary struct {
	RecordingSeconds   float64                          `json:"recording_seconds" yaml:"recording_seconds" msgpack:"recording_seconds"`
	Categories         map[event.Category]CategoryStats `json:"categories" yaml:"categories" msgpack:"categories"`
	Disturbances       int                              `json:"disturbances" yaml:"disturbances" msgpack:"disturbances"`
	DisturbanceSeconds float64                          `json:"disturbance_seconds" yaml:"disturbance_seconds" msgpack:"disturbance_seconds"`
	QuietPercent       float64                          `json:"quiet_percent" yaml:"quiet_percent" msgpack:"quiet_percent"`
	// BusiestHour is the zero-based hour of the recording holding the most
	// disturbances; ties go to the earlier hour.
	BusiestHour       int `json:"busiest_hour" yaml:"busiest_hour" msgpack:"busiest_hour"`
	BusiestHourEvents int `json:"busiest_hour_events" yaml:"busiest_hour_events" msgpack:"busiest_hour_events"`
}

// Summarize aggregates events over a recording of recordingSeconds. A
// zero-length recording yields an all-zero summary.
func Summarize(events []event.Event, recordingSeconds float64) Summary {
	s := Summary{
		RecordingSeconds: math.Max(0, recordingSeconds),
		Categories:       make(map[event.Category]CategoryStats, len(event.Categories)),
	}
	for _, c := range event.Categories {
		s.Categories[c] = CategoryStats{}
	}

	hours := map[int]int{}
	for _, ev := range events {
		c := ev.Category
		if c == event.Unclassified {
			c = event.OtherSound
		}
		st := s.Categories[c]
		st.Count++
		st.Seconds += ev.Duration
		s.Categories[c] = st

		if c.Disturbance() {
			s.Disturbances++
			s.DisturbanceSeconds += ev.Duration
			hours[int(ev.Start/3600)]++
		}
	}

	if s.RecordingSeconds > 0 {
		for c, st := range s.Categories {
			st.Percent = 100 * st.Seconds / s.RecordingSeconds
			s.Categories[c] = st
		}
		s.QuietPercent = math.Max(0, 100-100*s.DisturbanceSeconds/s.RecordingSeconds)
	}

	keys := make([]int, 0, len(hours))
	for h := range hours {
		keys = append(keys, h)
	}
	sort.Ints(keys)
	for _, h := range keys {
		if hours[h] > s.BusiestHourEvents {
			s.BusiestHour, s.BusiestHourEvents = h, hours[h]
		}
	}
	return s
}

// Stats returns the aggregate for c, zero when absent.
func (s Summary) Stats(c event.Category) CategoryStats {
	return s.Categories[c]
}
