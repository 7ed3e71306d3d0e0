package segment

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/features"
)

var scenario = Config{OnsetThreshold: 0.5, OffsetThreshold: 0.2, MinSilenceWindows: 2, MinEventSeconds: 1}

// trace builds back-to-back vectors of the given length from energies.
func trace(hop, length float64, energies ...float64) []features.Vector {
	vs := make([]features.Vector, len(energies))
	for i, e := range energies {
		start := float64(i) * hop
		vs[i] = features.Vector{Index: i, Start: start, End: start + length, Energy: e}
	}
	return vs
}

func repeat(e float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = e
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func mustNew(t *testing.T, cfg Config) *Segmenter {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSingleBurst(t *testing.T) {
	// 10 s at 0.1 s windows, 3 s burst of energy 0.9 starting at 3 s.
	energies := concat(repeat(0.01, 30), repeat(0.9, 30), repeat(0.01, 40))
	got := mustNew(t, scenario).Segment(trace(0.1, 0.1, energies...))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	ev := got[0].Event
	if math.Abs(ev.Start-3) > 1e-9 || math.Abs(ev.Duration-3) > 1e-9 {
		t.Fatalf("event = %+v, want start 3 duration 3", ev)
	}
	if ev.PeakVolume != 0.9 {
		t.Fatalf("peak = %v, want 0.9", ev.PeakVolume)
	}
	if len(got[0].Trace) != 30 || got[0].Trace[0].Index != 30 {
		t.Fatalf("trace spans %d vectors from %d", len(got[0].Trace), got[0].Trace[0].Index)
	}
}

func TestBurstsSeparatedByMinSilenceStaySeparate(t *testing.T) {
	energies := concat(repeat(0.9, 15), repeat(0.0, scenario.MinSilenceWindows), repeat(0.9, 15))
	got := mustNew(t, scenario).Segment(trace(0.1, 0.1, energies...))
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Event.End() > got[1].Event.Start {
		t.Fatalf("events overlap: %+v %+v", got[0].Event, got[1].Event)
	}
}

func TestShortGapMerges(t *testing.T) {
	energies := concat(repeat(0.9, 15), repeat(0.0, scenario.MinSilenceWindows-1), repeat(0.9, 15))
	got := mustNew(t, scenario).Segment(trace(0.1, 0.1, energies...))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 merged event", len(got))
	}
	if math.Abs(got[0].Event.Duration-3.1) > 1e-9 {
		t.Fatalf("duration = %v, want 3.1", got[0].Event.Duration)
	}
}

func TestHysteresis(t *testing.T) {
	// Energy between the thresholds neither opens nor closes an event.
	energies := concat(repeat(0.3, 10), repeat(0.6, 5), repeat(0.3, 10), repeat(0.1, 2), repeat(0.3, 10))
	got := mustNew(t, scenario).Segment(trace(0.1, 0.1, energies...))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	ev := got[0].Event
	if math.Abs(ev.Start-1.0) > 1e-9 || math.Abs(ev.Duration-1.5) > 1e-9 {
		t.Fatalf("event = %+v, want start 1.0 duration 1.5", ev)
	}
	if ev.PeakVolume != 0.6 {
		t.Fatalf("peak = %v", ev.PeakVolume)
	}
}

func TestInclusiveThresholds(t *testing.T) {
	cfg := Config{OnsetThreshold: 0.5, OffsetThreshold: 0.2, MinSilenceWindows: 1}
	// Exactly onset opens; exactly offset does not count as quiet.
	got := mustNew(t, cfg).Segment(trace(1, 1, 0.5, 0.2, 0.19))
	if len(got) != 1 || got[0].Event.Duration != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestShortEventsDiscarded(t *testing.T) {
	energies := concat(repeat(0, 5), repeat(0.9, 5), repeat(0, 5), repeat(0.9, 20), repeat(0, 5))
	got := mustNew(t, scenario).Segment(trace(0.1, 0.1, energies...))
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Event.Duration < scenario.MinEventSeconds {
		t.Fatalf("kept short event %+v", got[0].Event)
	}
}

func TestEventOpenAtEndIsClosed(t *testing.T) {
	got := mustNew(t, scenario).Segment(trace(0.5, 0.5, 0, 0, 0.8, 0.8, 0.8))
	if len(got) != 1 || got[0].Event.Start != 1 || got[0].Event.Duration != 1.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestAllQuietYieldsNothing(t *testing.T) {
	if got := mustNew(t, scenario).Segment(trace(0.1, 0.1, repeat(0.1, 100)...)); len(got) != 0 {
		t.Fatalf("got %d events from silence", len(got))
	}
	if got := mustNew(t, scenario).Segment(nil); len(got) != 0 {
		t.Fatal("expected no events for empty input")
	}
}

func TestEventsSortedAndDisjointWithOverlappingWindows(t *testing.T) {
	cfg := Config{OnsetThreshold: 0.5, OffsetThreshold: 0.2, MinSilenceWindows: 1, MinEventSeconds: 0.5}
	rng := rand.New(rand.NewSource(42))
	energies := make([]float64, 2000)
	for i := range energies {
		energies[i] = rng.Float64()
	}
	// One-second windows every quarter second.
	got := mustNew(t, cfg).Segment(trace(0.25, 1, energies...))
	if len(got) == 0 {
		t.Fatal("expected some events")
	}
	for i, d := range got {
		if d.Event.Duration < cfg.MinEventSeconds || d.Event.Duration <= 0 {
			t.Fatalf("event %d duration %v", i, d.Event.Duration)
		}
		if i > 0 && d.Event.Start < got[i-1].Event.End() {
			t.Fatalf("event %d starts at %v before previous end %v", i, d.Event.Start, got[i-1].Event.End())
		}
	}
}

func TestDeterministic(t *testing.T) {
	energies := concat(repeat(0, 10), repeat(0.7, 20), repeat(0, 10), repeat(0.9, 30))
	s := mustNew(t, scenario)
	a := s.Segment(trace(0.1, 0.1, energies...))
	b := s.Segment(trace(0.1, 0.1, energies...))
	if len(a) != len(b) {
		t.Fatal("different event counts")
	}
	for i := range a {
		if a[i].Event != b[i].Event {
			t.Fatalf("event %d differs: %+v vs %+v", i, a[i].Event, b[i].Event)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"offset equals onset", Config{OnsetThreshold: 0.5, OffsetThreshold: 0.5, MinSilenceWindows: 1}},
		{"offset above onset", Config{OnsetThreshold: 0.3, OffsetThreshold: 0.5, MinSilenceWindows: 1}},
		{"zero onset", Config{OnsetThreshold: 0, OffsetThreshold: 0, MinSilenceWindows: 1}},
		{"onset above one", Config{OnsetThreshold: 1.5, OffsetThreshold: 0.2, MinSilenceWindows: 1}},
		{"negative offset", Config{OnsetThreshold: 0.5, OffsetThreshold: -0.1, MinSilenceWindows: 1}},
		{"zero silence windows", Config{OnsetThreshold: 0.5, OffsetThreshold: 0.2}},
		{"negative min duration", Config{OnsetThreshold: 0.5, OffsetThreshold: 0.2, MinSilenceWindows: 1, MinEventSeconds: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, errs.ErrInvalidConfig) {
				t.Fatalf("err = %v, want InvalidConfig", err)
			}
		})
	}
}
