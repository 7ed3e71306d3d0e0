// Package segment turns a feature sequence into discrete events with a
// two-threshold (hysteresis) state machine.
package segment

import (
	"fmt"

	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
)

type Config struct {
	OnsetThreshold    float64 `yaml:"onset_threshold" mapstructure:"onset_threshold" json:"onset_threshold" validate:"gt=0,lte=1"`
	OffsetThreshold   float64 `yaml:"offset_threshold" mapstructure:"offset_threshold" json:"offset_threshold" validate:"gte=0,ltfield=OnsetThreshold"`
	MinSilenceWindows int     `yaml:"min_silence_windows" mapstructure:"min_silence_windows" json:"min_silence_windows" validate:"gte=1"`
	MinEventSeconds   float64 `yaml:"min_event_seconds" mapstructure:"min_event_seconds" json:"min_event_seconds" validate:"gte=0"`
}

func (c Config) Validate() error {
	switch {
	case !(c.OnsetThreshold > 0 && c.OnsetThreshold <= 1):
		return errs.InvalidConfig("onset_threshold", fmt.Sprintf("must be in (0,1] (got %v)", c.OnsetThreshold))
	case !(c.OffsetThreshold >= 0):
		return errs.InvalidConfig("offset_threshold", fmt.Sprintf("must be non-negative (got %v)", c.OffsetThreshold))
	case c.OffsetThreshold >= c.OnsetThreshold:
		return errs.InvalidConfig("offset_threshold", fmt.Sprintf("must be below onset_threshold (%v >= %v)", c.OffsetThreshold, c.OnsetThreshold))
	case c.MinSilenceWindows < 1:
		return errs.InvalidConfig("min_silence_windows", fmt.Sprintf("must be at least 1 (got %d)", c.MinSilenceWindows))
	case !(c.MinEventSeconds >= 0):
		return errs.InvalidConfig("min_event_seconds", fmt.Sprintf("must be non-negative (got %v)", c.MinEventSeconds))
	}
	return nil
}

// Detection is an uncategorised event with the feature vectors it spans,
// from the opening window through the last active window.
type Detection struct {
	Event event.Event
	Trace []features.Vector
}

type state int

const (
	quiet state = iota
	active
)

type Segmenter struct {
	cfg Config
}

func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg}, nil
}

// open tracks the event being built while active.
type open struct {
	start      float64
	end        float64
	peak       float64
	first      int
	last       int
	quietCount int
}

// Segment makes one forward pass over vs, which must be in timestamp order.
// Returned events are sorted by start and never overlap.
func (s *Segmenter) Segment(vs []features.Vector) []Detection {
	var (
		out     []Detection
		st      = quiet
		cur     open
		prevEnd float64
	)

	closeEvent := func() {
		st = quiet
		d := cur.end - cur.start
		if d <= 0 || d < s.cfg.MinEventSeconds {
			return
		}
		out = append(out, Detection{
			Event: event.Event{Start: cur.start, Duration: d, PeakVolume: cur.peak},
			Trace: vs[cur.first : cur.last+1],
		})
		prevEnd = cur.end
	}

	for i, v := range vs {
		switch st {
		case quiet:
			if v.Energy >= s.cfg.OnsetThreshold {
				st = active
				// Overlapping windows can start before the previous event ended.
				start := v.Start
				if start < prevEnd {
					start = prevEnd
				}
				cur = open{start: start, end: v.End, peak: v.Energy, first: i, last: i}
			}
		case active:
			if v.Energy < s.cfg.OffsetThreshold {
				cur.quietCount++
				if cur.quietCount >= s.cfg.MinSilenceWindows {
					closeEvent()
				}
				continue
			}
			cur.quietCount = 0
			cur.end = v.End
			cur.last = i
			if v.Energy > cur.peak {
				cur.peak = v.Energy
			}
		}
	}
	if st == active {
		closeEvent()
	}
	return out
}
