package classify

import (
	"context"
	"math"

	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
)

// RuleConfig holds the feature thresholds of the rule classifier.
type RuleConfig struct {
	SilenceEnergy     float64 `yaml:"silence_energy" mapstructure:"silence_energy" json:"silence_energy" validate:"gte=0,lte=1"`
	CoughMaxSeconds   float64 `yaml:"cough_max_seconds" mapstructure:"cough_max_seconds" json:"cough_max_seconds" validate:"gt=0"`
	CoughMinPeak      float64 `yaml:"cough_min_peak" mapstructure:"cough_min_peak" json:"cough_min_peak" validate:"gte=0,lt=1"`
	BroadbandFlatness float64 `yaml:"broadband_flatness" mapstructure:"broadband_flatness" json:"broadband_flatness" validate:"gte=0,lte=1"`
	BroadbandCentroid float64 `yaml:"broadband_centroid_hz" mapstructure:"broadband_centroid_hz" json:"broadband_centroid_hz" validate:"gte=0"`
	SnoreMinSeconds   float64 `yaml:"snore_min_seconds" mapstructure:"snore_min_seconds" json:"snore_min_seconds" validate:"gte=0"`
	SnoreMaxPeak      float64 `yaml:"snore_max_peak" mapstructure:"snore_max_peak" json:"snore_max_peak" validate:"gt=0,lte=1"`
	SnoreMaxCentroid  float64 `yaml:"snore_max_centroid_hz" mapstructure:"snore_max_centroid_hz" json:"snore_max_centroid_hz" validate:"gt=0"`
	// Breathing-rate lag range searched for amplitude modulation.
	BreathMinSeconds float64 `yaml:"breath_min_seconds" mapstructure:"breath_min_seconds" json:"breath_min_seconds" validate:"gt=0"`
	BreathMaxSeconds float64 `yaml:"breath_max_seconds" mapstructure:"breath_max_seconds" json:"breath_max_seconds" validate:"gtefield=BreathMinSeconds"`
}

func DefaultRules() RuleConfig {
	return RuleConfig{
		SilenceEnergy:     0.05,
		CoughMaxSeconds:   1.5,
		CoughMinPeak:      0.6,
		BroadbandFlatness: 0.3,
		BroadbandCentroid: 1500,
		SnoreMinSeconds:   2,
		SnoreMaxPeak:      0.8,
		SnoreMaxCentroid:  800,
		BreathMinSeconds:  2,
		BreathMaxSeconds:  6,
	}
}

// otherConfidence is reported for events no specific rule matched.
const otherConfidence = 0.6

// Rules classifies with fixed thresholds on duration, loudness and
// spectral shape. It is deterministic and stateless.
type Rules struct {
	cfg RuleConfig
}

func NewRules(cfg RuleConfig) *Rules { return &Rules{cfg: cfg} }

type shape struct {
	meanEnergy  float64
	centroid    float64
	flatness    float64
	periodicity float64
}

func (r *Rules) Classify(_ context.Context, ev event.Event, trace []features.Vector) (event.Category, float64, error) {
	s := r.shape(trace)
	c := r.cfg
	switch {
	case s.meanEnergy < c.SilenceEnergy:
		return event.Silence, 0.5 + 0.5*(1-s.meanEnergy/c.SilenceEnergy), nil

	case ev.Duration <= c.CoughMaxSeconds && ev.PeakVolume >= c.CoughMinPeak &&
		(s.flatness >= c.BroadbandFlatness || s.centroid >= c.BroadbandCentroid):
		margin := (ev.PeakVolume - c.CoughMinPeak) / (1 - c.CoughMinPeak)
		return event.CoughOrSpeech, 0.6 + 0.4*clamp01(margin), nil

	case ev.Duration >= c.SnoreMinSeconds && ev.PeakVolume <= c.SnoreMaxPeak && s.centroid <= c.SnoreMaxCentroid:
		// Unmodulated low sound (fans, hum) scores below the usual floor.
		return event.Snoring, 0.35 + 0.65*s.periodicity, nil
	}
	return event.OtherSound, otherConfidence, nil
}

// shape averages spectral features weighted by energy, so quiet windows
// inside an event barely move the result.
func (r *Rules) shape(trace []features.Vector) shape {
	var s shape
	if len(trace) == 0 {
		return s
	}
	var wsum float64
	for _, v := range trace {
		s.meanEnergy += v.Energy
		s.centroid += v.Energy * v.Centroid
		s.flatness += v.Energy * v.Flatness
		wsum += v.Energy
	}
	s.meanEnergy /= float64(len(trace))
	if wsum > 0 {
		s.centroid /= wsum
		s.flatness /= wsum
	}
	s.periodicity = r.periodicity(trace)
	return s
}

// periodicity is the peak normalized autocorrelation of the energy
// envelope over breathing-rate lags, in [0,1].
func (r *Rules) periodicity(trace []features.Vector) float64 {
	if len(trace) < 3 {
		return 0
	}
	hop := trace[1].Start - trace[0].Start
	if hop <= 0 {
		return 0
	}
	minLag := int(math.Ceil(r.cfg.BreathMinSeconds/hop - 1e-9))
	maxLag := int(math.Floor(r.cfg.BreathMaxSeconds/hop + 1e-9))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > len(trace)-2 {
		maxLag = len(trace) - 2
	}
	if minLag > maxLag {
		return 0
	}

	var mean float64
	for _, v := range trace {
		mean += v.Energy
	}
	mean /= float64(len(trace))
	var variance float64
	for _, v := range trace {
		d := v.Energy - mean
		variance += d * d
	}
	if variance < 1e-12 {
		return 0
	}

	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < len(trace); i++ {
			acc += (trace[i].Energy - mean) * (trace[i+lag].Energy - mean)
		}
		if rho := acc / variance; rho > best {
			best = rho
		}
	}
	return clamp01(best)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
