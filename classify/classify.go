// Package classify assigns categories to segmented events.
//
// Classifier implementations are interchangeable: the segmenter and the
// insight engine only ever see the resulting event.Event values.
package classify

import (
	"context"
	"fmt"
	"math"

	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
	"github.com/maastricht-university/sleepsense/segment"
)

const (
	KindRules  = "rules"
	KindRemote = "remote"
)

// Classifier labels one event given the feature vectors it spans.
type Classifier interface {
	Classify(ctx context.Context, ev event.Event, trace []features.Vector) (event.Category, float64, error)
}

type Config struct {
	Kind string `yaml:"kind" mapstructure:"kind" json:"kind" validate:"oneof=rules remote"`
	// ConfidenceFloor demotes less certain results to other_sound.
	ConfidenceFloor float64    `yaml:"confidence_floor" mapstructure:"confidence_floor" json:"confidence_floor" validate:"gte=0,lte=1"`
	Rules           RuleConfig `yaml:"rules" mapstructure:"rules" json:"rules"`
}

func (c Config) Validate() error {
	if c.Kind != KindRules && c.Kind != KindRemote {
		return errs.InvalidConfig("classifier.kind", fmt.Sprintf("must be %q or %q (got %q)", KindRules, KindRemote, c.Kind))
	}
	if !(c.ConfidenceFloor >= 0 && c.ConfidenceFloor <= 1) {
		return errs.InvalidConfig("confidence_floor", fmt.Sprintf("must be in [0,1] (got %v)", c.ConfidenceFloor))
	}
	return nil
}

// Apply classifies every detection in order. Results under floor, and
// results with an unknown category, become other_sound; classifier errors
// abort the run.
func Apply(ctx context.Context, c Classifier, floor float64, dets []segment.Detection) ([]event.Event, error) {
	out := make([]event.Event, 0, len(dets))
	for _, d := range dets {
		cat, conf, err := c.Classify(ctx, d.Event, d.Trace)
		if err != nil {
			return nil, errs.Classification(d.Event.Start, err)
		}
		if math.IsNaN(conf) {
			conf = 0
		}
		conf = math.Max(0, math.Min(1, conf))
		if conf < floor || cat == event.Unclassified {
			cat = event.OtherSound
		}
		out = append(out, d.Event.Classified(cat, conf))
	}
	return out, nil
}
