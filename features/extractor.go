// Package features computes per-window acoustic features.
//
// Every feature is computed from a single window, so windows can be
// processed in any order and on any number of workers.
package features

import (
	"fmt"
	"math"

	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/signal"
)

// Vector holds the features of one window.
type Vector struct {
	Index int     `json:"index" msgpack:"i"`
	Start float64 `json:"start" msgpack:"s"`
	End   float64 `json:"end" msgpack:"e"`
	// Energy is RMS amplitude over full scale, in [0,1].
	Energy   float64 `json:"energy" msgpack:"en"`
	Peak     float64 `json:"peak" msgpack:"pk"`
	Centroid float64 `json:"centroid_hz" msgpack:"ce"`
	// Flatness is the Wiener entropy of the power spectrum: near 1 for
	// broadband noise, near 0 for tonal sound.
	Flatness float64 `json:"flatness" msgpack:"fl"`
	ZCR      float64 `json:"zcr" msgpack:"zc"`
}

type Config struct {
	// FullScale is the amplitude that maps to energy 1.0.
	FullScale float64 `yaml:"full_scale" mapstructure:"full_scale" json:"full_scale" validate:"gt=0"`
}

type Extractor struct {
	fullScale  float64
	sampleRate float64
}

func NewExtractor(cfg Config, sampleRate int) (*Extractor, error) {
	if !(cfg.FullScale > 0) {
		return nil, errs.InvalidConfig("full_scale", fmt.Sprintf("must be positive (got %v)", cfg.FullScale))
	}
	if sampleRate <= 0 {
		return nil, errs.InvalidConfig("sample_rate", fmt.Sprintf("must be positive (got %d)", sampleRate))
	}
	return &Extractor{fullScale: cfg.FullScale, sampleRate: float64(sampleRate)}, nil
}

// Extract computes the feature vector of w. Padding samples are ignored.
func (e *Extractor) Extract(w signal.Window) (Vector, error) {
	if w.Valid < 2 || len(w.Samples) < w.Valid {
		return Vector{}, errs.DegenerateWindow(w.Start, fmt.Sprintf("window %d has %d usable samples, need at least 2", w.Index, w.Valid))
	}
	x := w.Samples[:w.Valid]

	var sumSq, peak float64
	crossings := 0
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Vector{}, errs.DegenerateWindow(w.Start, fmt.Sprintf("window %d contains non-finite sample at %d", w.Index, i))
		}
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
		if i > 0 && (x[i-1] >= 0) != (v >= 0) {
			crossings++
		}
	}

	n := float64(len(x))
	centroid, flatness := e.spectralShape(x)
	return Vector{
		Index:    w.Index,
		Start:    w.Start,
		End:      w.End,
		Energy:   clamp01(math.Sqrt(sumSq/n) / e.fullScale),
		Peak:     clamp01(peak / e.fullScale),
		Centroid: centroid,
		Flatness: flatness,
		ZCR:      float64(crossings) / (n - 1),
	}, nil
}

func (e *Extractor) spectralShape(x []float64) (centroid, flatness float64) {
	mags, size := magnitudes(x)
	binHz := e.sampleRate / float64(size)

	var weighted, total float64
	var logSum, powSum float64
	bins := 0
	for k := 1; k < len(mags); k++ {
		m := mags[k]
		weighted += float64(k) * binHz * m
		total += m
		p := m*m + 1e-20
		logSum += math.Log(p)
		powSum += p
		bins++
	}
	if total <= 1e-12 || bins == 0 {
		return 0, 0
	}
	centroid = weighted / total
	flatness = math.Exp(logSum/float64(bins)) / (powSum / float64(bins))
	return centroid, clamp01(flatness)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
