// Package event defines detected acoustic events and their categories.
package event

import (
	"fmt"
	"strings"
)

type Category string

const (
	Unclassified  Category = ""
	Snoring       Category = "snoring"
	CoughOrSpeech Category = "cough_or_speech"
	OtherSound    Category = "other_sound"
	Silence       Category = "silence"
)

// Categories lists every classified category in reporting order.
var Categories = []Category{Snoring, CoughOrSpeech, OtherSound, Silence}

// ParseCategory accepts the wire names above, case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown event category %q", s)
}

// Disturbance reports whether the category counts against a quiet night.
func (c Category) Disturbance() bool {
	return c != Silence && c != Unclassified
}

// Label is the human form used in messages, e.g. "cough or speech".
func (c Category) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Event is a contiguous interval of acoustic activity. Times are seconds
// from the start of the recording. Events are values: reclassification
// produces a new Event.
type Event struct {
	Start      float64  `json:"start" yaml:"start"`
	Duration   float64  `json:"duration" yaml:"duration"`
	Category   Category `json:"category" yaml:"category"`
	PeakVolume float64  `json:"peak_volume" yaml:"peak_volume"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
}

func (e Event) End() float64 { return e.Start + e.Duration }

// Classified returns a copy of e with category and confidence set.
func (e Event) Classified(c Category, confidence float64) Event {
	e.Category = c
	e.Confidence = confidence
	return e
}
