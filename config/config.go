package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/sleepsense/classify"
	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/insights"
	"github.com/maastricht-university/sleepsense/segment"
	"github.com/maastricht-university/sleepsense/signal"
)

// EnvPrefix prefixes every environment override, e.g.
// SLEEPSENSE_SEGMENTATION_ONSET_THRESHOLD.
const EnvPrefix = "SLEEPSENSE"

type Service struct {
	URL string `yaml:"url" mapstructure:"url" json:"url" validate:"omitempty,url"`
}

func (s Service) Enabled() bool { return s.URL != "" }

type Services struct {
	Context        Service `yaml:"context" mapstructure:"context" json:"context"`
	Model          Service `yaml:"model" mapstructure:"model" json:"model"`
	Visualization  Service `yaml:"visualization" mapstructure:"visualization" json:"visualization"`
	Archive        Service `yaml:"archive" mapstructure:"archive" json:"archive"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
}

func (s Services) Timeout() time.Duration { return DurSeconds(s.TimeoutSeconds) }

type Pipeline struct {
	Name      string `yaml:"name" mapstructure:"name" json:"name"`
	Version   string `yaml:"version" mapstructure:"version" json:"version"`
	LogLevel  string `yaml:"log_level" mapstructure:"log_level" json:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format" json:"log_format" validate:"oneof=text json"`
	// Workers for feature extraction; 0 uses every CPU.
	Workers int `yaml:"workers" mapstructure:"workers" json:"workers" validate:"gte=0"`
}

type Audio struct {
	// SampleRate of raw PCM input.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" json:"sample_rate" validate:"gt=0"`
	// AnalysisRate resamples the input before framing; 0 keeps the input rate.
	AnalysisRate int     `yaml:"analysis_rate" mapstructure:"analysis_rate" json:"analysis_rate" validate:"gte=0"`
	FullScale    float64 `yaml:"full_scale" mapstructure:"full_scale" json:"full_scale" validate:"gt=0"`
}

type Paths struct {
	Outputs string `yaml:"outputs" mapstructure:"outputs" json:"outputs"`
	// Store is the directory of the run history database; empty disables it.
	Store  string `yaml:"store" mapstructure:"store" json:"store"`
	Format string `yaml:"format" mapstructure:"format" json:"format" validate:"oneof=json yaml"`
}

type Root struct {
	Pipeline     Pipeline            `yaml:"pipeline" mapstructure:"pipeline" json:"pipeline"`
	Audio        Audio               `yaml:"audio" mapstructure:"audio" json:"audio"`
	Framing      signal.Config       `yaml:"framing" mapstructure:"framing" json:"framing"`
	Segmentation segment.Config      `yaml:"segmentation" mapstructure:"segmentation" json:"segmentation"`
	Classifier   classify.Config     `yaml:"classifier" mapstructure:"classifier" json:"classifier"`
	Insights     insights.Thresholds `yaml:"insights" mapstructure:"insights" json:"insights"`
	Services     Services            `yaml:"services" mapstructure:"services" json:"services"`
	Paths        Paths               `yaml:"paths" mapstructure:"paths" json:"paths"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-" mapstructure:"-" json:"-"`
}

func Default() Root {
	return Root{
		Pipeline: Pipeline{Name: "sleepsense", Version: "0.3.0", LogLevel: "info", LogFormat: "text"},
		Audio:    Audio{SampleRate: 16000, FullScale: 1},
		Framing:  signal.Config{WindowSeconds: 1, HopSeconds: 0.5, PadFinal: true},
		Segmentation: segment.Config{
			OnsetThreshold:    0.1,
			OffsetThreshold:   0.05,
			MinSilenceWindows: 2,
			MinEventSeconds:   0.5,
		},
		Classifier: classify.Config{Kind: classify.KindRules, ConfidenceFloor: 0.5, Rules: classify.DefaultRules()},
		Insights:   insights.DefaultThresholds(),
		Services:   Services{TimeoutSeconds: 60},
		Paths:      Paths{Outputs: "outputs", Format: "json"},
	}
}

// Option adjusts the viper instance after files and environment are
// wired, e.g. to bind command-line flags.
type Option func(*viper.Viper) error

// Load layers defaults, a config file and SLEEPSENSE_* environment
// variables, then validates the result. An empty path falls back to
// config/$CONFIG_ENV/config.yaml, then sleepsense.yaml; a missing
// fallback file is not an error.
func Load(path string, opts ...Option) (*Root, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path == "" {
		path = guess()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errs.InvalidConfig("", fmt.Sprintf("cannot read %s: %v", path, err)).WithCause(err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.InvalidConfig("", err.Error()).WithCause(err)
	}
	cfg.Source = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		filepath.Join("config", env, "config.yaml"),
		"sleepsense.yaml",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags first, then the rules each component
// enforces itself. Every failure is an INVALID_CONFIG error.
func (r Root) Validate() error {
	if err := validate.Struct(r); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return errs.InvalidConfig("", err.Error()).WithCause(err)
		}
		fields := make([]string, 0, len(ves))
		msgs := make([]string, 0, len(ves))
		for _, fe := range ves {
			field := fe.Namespace()
			if i := strings.IndexByte(field, '.'); i >= 0 {
				field = field[i+1:]
			}
			fields = append(fields, field)
			msgs = append(msgs, field+" "+describe(fe))
		}
		return errs.InvalidConfig("", strings.Join(msgs, "; ")).WithDetail("fields", fields)
	}

	for _, check := range []func() error{
		r.Framing.Validate,
		r.Segmentation.Validate,
		r.Classifier.Validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	if r.Classifier.Kind == classify.KindRemote && !r.Services.Model.Enabled() {
		return errs.InvalidConfig("services.model.url", "is required by the remote classifier")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "ltfield":
		return "must be less than " + fe.Param()
	case "gtefield":
		return "must not be less than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// YAML renders the effective configuration.
func (r Root) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
