// Package signal holds sample streams and slices them into analysis windows.
package signal

import (
	"fmt"

	"github.com/maastricht-university/sleepsense/errs"
)

// Stream is a fully materialized mono recording. Amplitudes are expected in
// [-FullScale, FullScale] of the feature extractor (1.0 for decoded PCM).
// Streams are treated as immutable once built.
type Stream struct {
	SampleRate int
	Samples    []float64
}

// Seconds is the recording length.
func (s Stream) Seconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Empty reports whether the stream has no samples.
func (s Stream) Empty() bool { return len(s.Samples) == 0 }

// Validate checks the stream header.
func (s Stream) Validate() error {
	if s.SampleRate <= 0 {
		return errs.InvalidConfig("sample_rate", fmt.Sprintf("must be positive (got %d)", s.SampleRate))
	}
	return nil
}
