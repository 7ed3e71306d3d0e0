package orchestrator

import (
	"time"

	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
	"github.com/maastricht-university/sleepsense/insights"
)

// Result is everything one run produced.
type Result struct {
	RunID            string  `json:"run_id" yaml:"run_id"`
	Source           string  `json:"source,omitempty" yaml:"source,omitempty"`
	SampleRate       int     `json:"sample_rate" yaml:"sample_rate"` // after resampling
	RecordingSeconds float64 `json:"recording_seconds" yaml:"recording_seconds"`
	WindowCount      int     `json:"window_count" yaml:"window_count"`
	HopSeconds       float64 `json:"hop_seconds" yaml:"hop_seconds"`

	Events   []event.Event       `json:"events" yaml:"events"`
	// Traces[i] holds the feature vectors behind Events[i].
	Traces   [][]features.Vector `json:"-" yaml:"-"`
	Summary  insights.Summary    `json:"summary" yaml:"summary"`
	Context  map[string]float64  `json:"context,omitempty" yaml:"context,omitempty"`
	Insights []insights.Record   `json:"insights" yaml:"insights"`

	// Set by Run.
	BundlePath      string        `json:"bundle_path,omitempty" yaml:"bundle_path,omitempty"`
	Charts          []string      `json:"charts,omitempty" yaml:"charts,omitempty"`
	ArchiveLocation string        `json:"archive_location,omitempty" yaml:"archive_location,omitempty"`
	Elapsed         time.Duration `json:"-" yaml:"-"`
}

// RunOptions describe the input file of Run.
type RunOptions struct {
	// SampleRate of the raw PCM; 0 uses audio.sample_rate.
	SampleRate int
	// Context values override those fetched from the context service.
	Context map[string]float64
	// RecordedAt is when the recording started; zero means it ended now.
	RecordedAt time.Time
}
