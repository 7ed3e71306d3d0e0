package signal

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts s to the given rate. A rate of zero or the stream's own
// rate returns s unchanged. The resampler's filter delay can shorten the
// tail by a few milliseconds.
func Resample(s Stream, rate int) (Stream, error) {
	if err := s.Validate(); err != nil {
		return Stream{}, err
	}
	if rate == 0 || rate == s.SampleRate {
		return s, nil
	}
	if rate < 0 {
		return Stream{}, fmt.Errorf("resample: invalid target rate %d", rate)
	}
	if s.Empty() {
		return Stream{SampleRate: rate}, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(s.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Stream{}, fmt.Errorf("failed to create resampler: %w", err)
	}
	out, err := r.Process(s.Samples)
	if err != nil {
		return Stream{}, fmt.Errorf("resample error: %w", err)
	}
	return Stream{SampleRate: rate, Samples: out}, nil
}
