package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/sleepsense/config"
	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/insights"
	"github.com/maastricht-university/sleepsense/signal"
	"github.com/maastricht-university/sleepsense/store"
)

const rate = 1000

// scenarioConfig uses one-second non-overlapping windows and the
// thresholds of the 3-second burst scenario.
func scenarioConfig() *cfg.Root {
	c := cfg.Default()
	c.Audio.SampleRate = rate
	c.Framing = signal.Config{WindowSeconds: 1, HopSeconds: 1, PadFinal: true}
	c.Segmentation.OnsetThreshold = 0.5
	c.Segmentation.OffsetThreshold = 0.2
	c.Segmentation.MinSilenceWindows = 2
	c.Segmentation.MinEventSeconds = 1
	c.Pipeline.Workers = 4
	c.Paths.Outputs = ""
	return &c
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newPipeline(t *testing.T, c *cfg.Root, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(c, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// burst returns seconds of silence with a square wave of the given RMS
// amplitude between from and to.
func burst(seconds, from, to, amp float64) signal.Stream {
	s := signal.Stream{SampleRate: rate, Samples: make([]float64, int(seconds*rate))}
	for i := int(from * rate); i < int(to*rate); i++ {
		if i%2 == 0 {
			s.Samples[i] = amp
		} else {
			s.Samples[i] = -amp
		}
	}
	return s
}

func TestThreeSecondBurst(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	res, err := p.Analyze(context.Background(), burst(10, 3, 6, 0.9), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %+v", res.Events)
	}
	ev := res.Events[0]
	if math.Abs(ev.Duration-3) > 1e-9 || math.Abs(ev.PeakVolume-0.9) > 1e-9 || ev.Start != 3 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Category == event.Unclassified || ev.Confidence <= 0 {
		t.Fatalf("event not classified: %+v", ev)
	}
	if res.WindowCount != 10 || res.RecordingSeconds != 10 || len(res.Traces) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Summary.Disturbances != 1 || len(res.Insights) == 0 {
		t.Fatalf("summary = %+v, insights = %+v", res.Summary, res.Insights)
	}
}

func TestTwoBurstsStayApart(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	s := burst(12, 1, 3, 0.9)
	// exactly MinSilenceWindows quiet windows between the bursts
	b := burst(12, 5, 7, 0.9)
	for i := 5 * rate; i < 7*rate; i++ {
		s.Samples[i] = b.Samples[i]
	}
	res, err := p.Analyze(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("events = %+v", res.Events)
	}
	if res.Events[0].End() > res.Events[1].Start {
		t.Fatalf("events overlap: %+v", res.Events)
	}
}

func TestIdempotent(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	s := burst(30, 2, 4, 0.8)
	extra := burst(30, 12, 19, 0.6)
	for i := 12 * rate; i < 19*rate; i++ {
		s.Samples[i] = extra.Samples[i]
	}
	ctx := map[string]float64{"humidity": 71}

	a, err := p.Analyze(context.Background(), s, ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Analyze(context.Background(), s, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Events, b.Events) || !reflect.DeepEqual(a.Insights, b.Insights) {
		t.Fatalf("runs differ:\n%+v\n%+v", a, b)
	}
	if a.RunID == b.RunID {
		t.Fatal("run ids should be unique")
	}
}

func TestQuietNight(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	s := signal.Stream{SampleRate: rate, Samples: make([]float64, 20*rate)}
	for i := range s.Samples {
		s.Samples[i] = 0.01 * math.Sin(float64(i))
	}
	res, err := p.Analyze(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("events = %+v", res.Events)
	}
	if len(res.Insights) != 1 || res.Insights[0].Rule != insights.QuietNightRule {
		t.Fatalf("insights = %+v", res.Insights)
	}
}

func TestEmptyStream(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	res, err := p.Analyze(context.Background(), signal.Stream{SampleRate: rate}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.WindowCount != 0 || res.Summary.Disturbances != 0 || res.Summary.RecordingSeconds != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Insights) != 1 || res.Insights[0].Rule != insights.QuietNightRule {
		t.Fatalf("insights = %+v", res.Insights)
	}
}

func TestInvalidConfigBeforeProcessing(t *testing.T) {
	c := scenarioConfig()
	c.Segmentation.OffsetThreshold = c.Segmentation.OnsetThreshold
	if _, err := NewPipeline(c); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestDegenerateWindowAborts(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	s := burst(5, 1, 2, 0.5)
	s.Samples[3500] = math.NaN()
	_, err := p.Analyze(context.Background(), s, nil)
	if !errors.Is(err, errs.ErrDegenerateWindow) {
		t.Fatalf("err = %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Timestamp == nil || *e.Timestamp != 3 || e.Stage != "extract" {
		t.Fatalf("error lacks location: %v", err)
	}
}

func TestInvalidStream(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	if _, err := p.Analyze(context.Background(), signal.Stream{}, nil); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}

func writePCM(t *testing.T, s signal.Stream) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "night.pcm")
	if err := os.WriteFile(path, signal.EncodePCM16(s), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunWithServicesAndStore(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/context":
			w.Write([]byte(`{"metrics":{"humidity":80,"steps":4000}}`))
		case "/generate-timeline", "/generate-radar":
			w.Write([]byte(`{"status":"ok","path":"/charts` + r.URL.Path + `.png"}`))
		case "/upload":
			if r.FormValue("run_id") == "" {
				t.Errorf("upload without run id")
			}
			w.Write([]byte(`{"id":"1","location":"archive://1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := scenarioConfig()
	c.Paths.Outputs = t.TempDir()
	c.Paths.Format = "yaml"
	c.Services.Context.URL = srv.URL
	c.Services.Visualization.URL = srv.URL
	c.Services.Archive.URL = srv.URL

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	p := newPipeline(t, c, WithStore(st))
	res, err := p.Run(context.Background(), writePCM(t, burst(10, 3, 6, 0.9)), RunOptions{Context: map[string]float64{"steps": 12000}})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/context", "/generate-timeline", "/generate-radar", "/upload"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v", calls)
	}
	if res.Context["humidity"] != 80 || res.Context["steps"] != 12000 {
		t.Fatalf("context = %v", res.Context)
	}
	if len(res.Events) != 1 || res.ArchiveLocation != "archive://1" || len(res.Charts) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.HasSuffix(res.BundlePath, "report.yaml") {
		t.Fatalf("bundle = %q", res.BundlePath)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(res.BundlePath), "events.yaml")); err != nil {
		t.Fatal(err)
	}

	saved, err := st.Load(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Events) != 1 || len(saved.Insights) != len(res.Insights) || len(saved.Traces) != 1 {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestRunContextServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sensor hub down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := scenarioConfig()
	c.Services.Context.URL = srv.URL
	p := newPipeline(t, c)
	_, err := p.Run(context.Background(), writePCM(t, burst(4, 1, 2, 0.5)), RunOptions{})
	if !errors.Is(err, errs.ErrExternalService) || !strings.Contains(err.Error(), "sensor hub down") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunMissingFile(t *testing.T) {
	p := newPipeline(t, scenarioConfig())
	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "none.pcm"), RunOptions{})
	if err == nil || !strings.HasPrefix(err.Error(), "read: ") {
		t.Fatalf("err = %v", err)
	}
}

func TestPersistJSON(t *testing.T) {
	res := &Result{
		RunID:    "0123456789abcdef",
		Summary:  insights.Summarize(nil, 0),
		Insights: []insights.Record{{Rule: insights.QuietNightRule, Text: "quiet", Priority: insights.Informational}},
	}
	root := t.TempDir()
	sid, evPath, repPath, err := persist(root, "json", "night.pcm", res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sid, "session_") || !strings.HasSuffix(sid, "_01234567") {
		t.Fatalf("session id = %q", sid)
	}
	b, err := os.ReadFile(evPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("events file = %s", b)
	}

	b, err = os.ReadFile(repPath)
	if err != nil {
		t.Fatal(err)
	}
	var bundle PersistBundle
	if err := json.Unmarshal(b, &bundle); err != nil {
		t.Fatal(err)
	}
	if bundle.RunID != res.RunID || bundle.SessionID != sid || len(bundle.Insights) != 1 || bundle.Insights[0].Priority != insights.Informational {
		t.Fatalf("bundle = %+v", bundle)
	}
	if !strings.Contains(string(b), `"priority": "informational"`) {
		t.Fatalf("priority not rendered by name:\n%s", b)
	}

	if _, _, _, err := persist(root, "xml", "", res); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestMergeContext(t *testing.T) {
	if mergeContext(nil, map[string]float64{}) != nil {
		t.Fatal("empty context should stay absent")
	}
	got := mergeContext(map[string]float64{"humidity": 60, "steps": 1}, map[string]float64{"steps": 9000})
	if got["humidity"] != 60 || got["steps"] != 9000 {
		t.Fatalf("merged = %v", got)
	}
}

func TestTimelineSkipsSilence(t *testing.T) {
	req := timelineRequest([]event.Event{
		{Start: 1, Duration: 2, Category: event.Silence},
		{Start: 5, Duration: 1, Category: event.Snoring, PeakVolume: 0.4},
	}, "out")
	if len(req.Timestamps) != 1 || req.Categories[0] != "snoring" || req.OutputDir != "out" {
		t.Fatalf("req = %+v", req)
	}
}
