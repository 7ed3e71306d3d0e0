package signal

import (
	"fmt"
	"math"

	"github.com/maastricht-university/sleepsense/errs"
)

// Config controls window slicing.
type Config struct {
	WindowSeconds float64 `yaml:"window_seconds" mapstructure:"window_seconds" json:"window_seconds" validate:"gt=0"`
	HopSeconds    float64 `yaml:"hop_seconds" mapstructure:"hop_seconds" json:"hop_seconds" validate:"gt=0"`
	// PadFinal zero-pads the trailing partial window instead of dropping it.
	PadFinal bool `yaml:"pad_final" mapstructure:"pad_final" json:"pad_final"`
}

func (c Config) Validate() error {
	if !(c.WindowSeconds > 0) {
		return errs.InvalidConfig("window_seconds", fmt.Sprintf("must be positive (got %v)", c.WindowSeconds))
	}
	if !(c.HopSeconds > 0) {
		return errs.InvalidConfig("hop_seconds", fmt.Sprintf("must be positive (got %v)", c.HopSeconds))
	}
	return nil
}

// Window is one analysis slice. Samples of a full window alias the source
// stream and must not be modified.
type Window struct {
	Index   int
	Offset  int
	Start   float64
	End     float64
	Samples []float64
	// Valid is the number of real samples; the rest is padding.
	Valid int
}

type Framer struct {
	cfg Config
}

func NewFramer(cfg Config) (*Framer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Framer{cfg: cfg}, nil
}

// Frame prepares the window sequence for s. No samples are copied until
// windows are pulled.
func (f *Framer) Frame(s Stream) (*Sequence, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	win := int(math.Round(f.cfg.WindowSeconds * float64(s.SampleRate)))
	hop := int(math.Round(f.cfg.HopSeconds * float64(s.SampleRate)))
	if win < 1 {
		return nil, errs.InvalidConfig("window_seconds", fmt.Sprintf("shorter than one sample at %d Hz", s.SampleRate))
	}
	if hop < 1 {
		return nil, errs.InvalidConfig("hop_seconds", fmt.Sprintf("shorter than one sample at %d Hz", s.SampleRate))
	}
	return &Sequence{stream: s, win: win, hop: hop, pad: f.cfg.PadFinal}, nil
}

// Sequence is a finite, restartable window sequence over one stream.
type Sequence struct {
	stream Stream
	win    int
	hop    int
	pad    bool
}

// Iter returns a fresh iterator positioned at the first window.
func (q *Sequence) Iter() *Iterator { return &Iterator{seq: q} }

// HopSeconds is the effective hop after snapping to the sample grid.
func (q *Sequence) HopSeconds() float64 { return float64(q.hop) / float64(q.stream.SampleRate) }

// WindowSeconds is the effective window length after snapping to the sample grid.
func (q *Sequence) WindowSeconds() float64 { return float64(q.win) / float64(q.stream.SampleRate) }

// Len is the number of windows the sequence yields.
func (q *Sequence) Len() int {
	full, partial := q.counts()
	if partial {
		return full + 1
	}
	return full
}

func (q *Sequence) counts() (full int, partial bool) {
	n := len(q.stream.Samples)
	if n >= q.win {
		full = (n-q.win)/q.hop + 1
	}
	covered := 0
	if full > 0 {
		covered = (full-1)*q.hop + q.win
	}
	partial = q.pad && covered < n && full*q.hop+minTail <= n
	return full, partial
}

// minTail is the fewest real samples a padded final window may hold; a
// shorter tail cannot be analyzed and is dropped.
const minTail = 2

// Collect pulls every window into a slice.
func (q *Sequence) Collect() []Window {
	out := make([]Window, 0, q.Len())
	it := q.Iter()
	for {
		w, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}

type Iterator struct {
	seq  *Sequence
	next int
}

// Next returns the next window, or false when the sequence is exhausted.
func (it *Iterator) Next() (Window, bool) {
	q := it.seq
	full, partial := q.counts()
	i := it.next
	switch {
	case i < full:
		it.next++
		off := i * q.hop
		return q.window(i, off, q.stream.Samples[off:off+q.win], q.win), true
	case i == full && partial:
		it.next++
		off := i * q.hop
		buf := make([]float64, q.win)
		valid := copy(buf, q.stream.Samples[off:])
		return q.window(i, off, buf, valid), true
	}
	return Window{}, false
}

func (q *Sequence) window(i, off int, samples []float64, valid int) Window {
	sr := float64(q.stream.SampleRate)
	return Window{
		Index:   i,
		Offset:  off,
		Start:   float64(off) / sr,
		End:     float64(off+valid) / sr,
		Samples: samples,
		Valid:   valid,
	}
}
