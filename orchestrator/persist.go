package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/insights"
)

type PersistBundle struct {
	SessionID        string             `json:"session_id" yaml:"session_id"`
	RunID            string             `json:"run_id" yaml:"run_id"`
	AudioPath        string             `json:"audio_path,omitempty" yaml:"audio_path,omitempty"`
	GeneratedAt      time.Time          `json:"generated_at" yaml:"generated_at"`
	RecordingSeconds float64            `json:"recording_seconds" yaml:"recording_seconds"`
	Summary          insights.Summary   `json:"summary" yaml:"summary"`
	Context          map[string]float64 `json:"context,omitempty" yaml:"context,omitempty"`
	Insights         []insights.Record  `json:"insights" yaml:"insights"`
	Events           []event.Event      `json:"events,omitempty" yaml:"events,omitempty"`
}

func mkSessionDir(outputsRoot, runID string, at time.Time) (string, string, error) {
	sid := "session_" + at.Format("20060102-150405")
	if len(runID) >= 8 {
		sid += "_" + runID[:8]
	}
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// persist writes events.<fmt> and report.<fmt> into a fresh session
// directory. The report carries everything but the events.
func persist(outputsRoot, format, audioPath string, res *Result) (sessionID, eventsPath, reportPath string, err error) {
	write, ext := writeJSON, "json"
	switch format {
	case "", "json":
	case "yaml":
		write, ext = writeYAML, "yaml"
	default:
		return "", "", "", fmt.Errorf("unknown bundle format %q", format)
	}

	now := time.Now().UTC()
	sid, outDir, err := mkSessionDir(outputsRoot, res.RunID, now)
	if err != nil {
		return "", "", "", err
	}

	evPath := filepath.Join(outDir, "events."+ext)
	repPath := filepath.Join(outDir, "report."+ext)

	events := res.Events
	if events == nil {
		events = []event.Event{}
	}
	if err = write(evPath, events); err != nil {
		return "", "", "", err
	}

	bundle := PersistBundle{
		SessionID:        sid,
		RunID:            res.RunID,
		AudioPath:        audioPath,
		GeneratedAt:      now,
		RecordingSeconds: res.RecordingSeconds,
		Summary:          res.Summary,
		Context:          res.Context,
		Insights:         res.Insights,
		Events:           nil, // keep events in events.<fmt> only
	}
	if err = write(repPath, bundle); err != nil {
		return "", "", "", err
	}

	return sid, evPath, repPath, nil
}
