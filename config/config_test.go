package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/sleepsense/errs"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
segmentation:
  onset_threshold: 0.5
  offset_threshold: 0.2
insights:
  cough_count: 4
services:
  context:
    url: http://localhost:8090
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Segmentation.OnsetThreshold != 0.5 || cfg.Segmentation.OffsetThreshold != 0.2 {
		t.Fatalf("segmentation = %+v", cfg.Segmentation)
	}
	// untouched keys keep their defaults
	if cfg.Segmentation.MinSilenceWindows != 2 || cfg.Framing.HopSeconds != 0.5 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Segmentation, cfg.Framing)
	}
	if cfg.Insights.CoughCount != 4 || cfg.Insights.SnoreCount != 12 {
		t.Fatalf("insights = %+v", cfg.Insights)
	}
	if !cfg.Services.Context.Enabled() || cfg.Services.Model.Enabled() {
		t.Fatalf("services = %+v", cfg.Services)
	}
	if cfg.Source != p {
		t.Fatalf("source = %q", cfg.Source)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "framing:\n  hop_seconds: 0.25\n")
	t.Setenv("SLEEPSENSE_FRAMING_HOP_SECONDS", "0.75")
	t.Setenv("SLEEPSENSE_PIPELINE_WORKERS", "3")

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Framing.HopSeconds != 0.75 || cfg.Pipeline.Workers != 3 {
		t.Fatalf("framing = %+v, workers = %d", cfg.Framing, cfg.Pipeline.Workers)
	}
}

func TestOption(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), func(v *viper.Viper) error {
		v.Set("pipeline.log_level", "debug")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.Pipeline.LogLevel)
	}
}

func TestInvalid(t *testing.T) {
	cases := map[string]string{
		"offset above onset": "segmentation:\n  onset_threshold: 0.2\n  offset_threshold: 0.5\n",
		"zero hop":           "framing:\n  hop_seconds: 0\n",
		"negative window":    "framing:\n  window_seconds: -1\n",
		"floor above one":    "classifier:\n  confidence_floor: 1.5\n",
		"unknown kind":       "classifier:\n  kind: neural\n",
		"remote without url": "classifier:\n  kind: remote\n",
		"bad format":         "paths:\n  format: xml\n",
		"bad url":            "services:\n  archive:\n    url: not a url\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			if !errors.Is(err, errs.ErrInvalidConfig) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestInvalidNamesField(t *testing.T) {
	_, err := Load(writeFile(t, "segmentation:\n  onset_threshold: 0.2\n  offset_threshold: 0.5\n"))
	if err == nil || !strings.Contains(err.Error(), "segmentation.offset_threshold") {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	b, err := Default().YAML()
	if err != nil {
		t.Fatal(err)
	}
	var back Root
	if err := yaml.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Segmentation != Default().Segmentation || back.Insights != Default().Insights {
		t.Fatalf("round trip changed config:\n%s", b)
	}
}

func TestTimeout(t *testing.T) {
	if got := (Services{TimeoutSeconds: 90}).Timeout().Seconds(); got != 90 {
		t.Fatalf("timeout = %v", got)
	}
}
