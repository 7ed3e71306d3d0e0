package insights

import (
	"fmt"
	"strings"

	"github.com/maastricht-university/sleepsense/event"
)

// Tier is the priority class of a record. Lower tiers are shown first.
type Tier int

const (
	Health Tier = iota
	Behavioral
	Informational
)

var tierNames = [...]string{"health", "behavioral", "informational"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if strings.EqualFold(s, n) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown insight tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Record is one finding. Records are never modified after Generate returns.
type Record struct {
	Rule      string   `json:"rule" yaml:"rule"`
	Text      string   `json:"text" yaml:"text"`
	Priority  Tier     `json:"priority" yaml:"priority"`
	Metrics   []string `json:"metrics" yaml:"metrics"`
	Magnitude float64  `json:"magnitude" yaml:"magnitude"`
}

// Thresholds parameterise the default rule table. The defaults are
// uncalibrated starting points and should be tuned against labelled nights.
type Thresholds struct {
	CoughCount      int     `yaml:"cough_count" mapstructure:"cough_count" json:"cough_count" validate:"gte=0"`
	HumidityAdvice  float64 `yaml:"humidity_advice" mapstructure:"humidity_advice" json:"humidity_advice" validate:"gte=0,lte=100"`
	SnoreCount      int     `yaml:"snore_count" mapstructure:"snore_count" json:"snore_count" validate:"gte=0"`
	SnorePercent    float64 `yaml:"snore_percent" mapstructure:"snore_percent" json:"snore_percent" validate:"gte=0,lte=100"`
	ActiveSteps     float64 `yaml:"active_steps" mapstructure:"active_steps" json:"active_steps" validate:"gte=0"`
	OtherCount      int     `yaml:"other_count" mapstructure:"other_count" json:"other_count" validate:"gte=0"`
	WarmTemperature float64 `yaml:"warm_temperature" mapstructure:"warm_temperature" json:"warm_temperature"`
	QualityMaxCough int     `yaml:"quality_max_cough" mapstructure:"quality_max_cough" json:"quality_max_cough" validate:"gte=0"`
	QualityMaxSnore int     `yaml:"quality_max_snore" mapstructure:"quality_max_snore" json:"quality_max_snore" validate:"gte=0"`
	QualityMaxOther int     `yaml:"quality_max_other" mapstructure:"quality_max_other" json:"quality_max_other" validate:"gte=0"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CoughCount:      8,
		HumidityAdvice:  70,
		SnoreCount:      12,
		SnorePercent:    10,
		ActiveSteps:     10000,
		OtherCount:      5,
		WarmTemperature: 24,
		QualityMaxCough: 3,
		QualityMaxSnore: 8,
		QualityMaxOther: 3,
	}
}

// Input is what triggers and message templates see.
type Input struct {
	S   Summary
	Ctx map[string]float64
	T   Thresholds
}

func (in Input) Cough() CategoryStats   { return in.S.Stats(event.CoughOrSpeech) }
func (in Input) Snore() CategoryStats   { return in.S.Stats(event.Snoring) }
func (in Input) Other() CategoryStats   { return in.S.Stats(event.OtherSound) }
func (in Input) Silence() CategoryStats { return in.S.Stats(event.Silence) }

// Has reports whether the external context carries key.
func (in Input) Has(key string) bool {
	_, ok := in.Ctx[key]
	return ok
}

// Rule pairs a trigger with a message template. Trigger returns the
// magnitude used to rank records within a tier.
type Rule struct {
	Name     string
	Tier     Tier
	Requires []string
	Metrics  []string
	Trigger  func(Input) (float64, bool)
	Message  string
}

// Context metric names understood by the default table.
const (
	Humidity    = "humidity"
	Steps       = "steps"
	Temperature = "temperature"
)

const QuietNightRule = "quiet_night"

// DefaultRules is the built-in rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "cough_humidity",
			Tier:     Health,
			Requires: []string{Humidity},
			Metrics:  []string{"cough_count", Humidity},
			Trigger: func(in Input) (float64, bool) {
				n := in.Cough().Count
				return float64(n), n > in.T.CoughCount
			},
			Message: `You coughed {{.Cough.Count}} times last night. Bedroom humidity was {{index .Ctx "humidity" | printf "%.0f"}}%` +
				`{{if gt (index .Ctx "humidity") .T.HumidityAdvice}} - consider a dehumidifier.{{else}}.{{end}}`,
		},
		{
			Name:    "cough_frequent",
			Tier:    Health,
			Metrics: []string{"cough_count"},
			Trigger: func(in Input) (float64, bool) {
				n := in.Cough().Count
				return float64(n), n > in.T.CoughCount && !in.Has(Humidity)
			},
			Message: `You coughed {{.Cough.Count}} times last night. Mention it to a doctor if night-time coughing persists.`,
		},
		{
			Name:    "snore_share",
			Tier:    Health,
			Metrics: []string{"snore_percent"},
			Trigger: func(in Input) (float64, bool) {
				p := in.Snore().Percent
				return p, p > in.T.SnorePercent
			},
			Message: `Snoring took up {{printf "%.1f" .Snore.Percent}}% of the night ({{minutes .Snore.Seconds}}). Persistent loud snoring can be a sign of sleep apnea.`,
		},
		{
			Name:     "snore_active",
			Tier:     Behavioral,
			Requires: []string{Steps},
			Metrics:  []string{"snore_count", Steps},
			Trigger: func(in Input) (float64, bool) {
				n := in.Snore().Count
				return float64(n), n > in.T.SnoreCount && in.Ctx[Steps] > in.T.ActiveSteps
			},
			Message: `You snored {{.Snore.Count}} times ({{printf "%.1f" .Snore.Percent}}% of night). You walked {{index .Ctx "steps" | printf "%.0f"}} steps yesterday - keep up the activity to limit snoring!`,
		},
		{
			Name:     "snore_inactive",
			Tier:     Behavioral,
			Requires: []string{Steps},
			Metrics:  []string{"snore_count", Steps},
			Trigger: func(in Input) (float64, bool) {
				n := in.Snore().Count
				return float64(n), n > in.T.SnoreCount && in.Ctx[Steps] <= in.T.ActiveSteps
			},
			Message: `You snored {{.Snore.Count}} times ({{printf "%.1f" .Snore.Percent}}% of night). Try sleeping on your side or getting more daily activity.`,
		},
		{
			Name:    "snore_frequent",
			Tier:    Behavioral,
			Metrics: []string{"snore_count"},
			Trigger: func(in Input) (float64, bool) {
				n := in.Snore().Count
				return float64(n), n > in.T.SnoreCount && !in.Has(Steps)
			},
			Message: `You snored {{.Snore.Count}} times ({{printf "%.1f" .Snore.Percent}}% of night). Try sleeping on your side.`,
		},
		{
			Name:    "external_noise",
			Tier:    Behavioral,
			Metrics: []string{"other_count"},
			Trigger: func(in Input) (float64, bool) {
				n := in.Other().Count
				return float64(n), n > in.T.OtherCount
			},
			Message: `Detected {{.Other.Count}} external noise disturbances. Consider white noise or earplugs to improve sleep quality.`,
		},
		{
			Name:     "warm_bedroom",
			Tier:     Behavioral,
			Requires: []string{Temperature},
			Metrics:  []string{Temperature, "disturbances"},
			Trigger: func(in Input) (float64, bool) {
				t := in.Ctx[Temperature]
				return t, t > in.T.WarmTemperature && in.S.Disturbances > 0
			},
			Message: `Bedroom temperature was {{index .Ctx "temperature" | printf "%.1f"}}°C with {{.S.Disturbances}} disturbances. A cooler room often means fewer wake-ups.`,
		},
		{
			Name:    "sleep_quality",
			Tier:    Informational,
			Metrics: []string{"quiet_percent"},
			Trigger: func(in Input) (float64, bool) {
				return in.S.QuietPercent, in.S.Disturbances > 0 &&
					in.Cough().Count < in.T.QualityMaxCough &&
					in.Snore().Count < in.T.QualityMaxSnore &&
					in.Other().Count < in.T.QualityMaxOther
			},
			Message: `Excellent sleep quality! {{printf "%.0f" .S.QuietPercent}}% quiet time with minimal disturbances.`,
		},
		{
			Name:    "busiest_hour",
			Tier:    Informational,
			Metrics: []string{"busiest_hour"},
			Trigger: func(in Input) (float64, bool) {
				return float64(in.S.BusiestHourEvents), in.S.Disturbances > 0
			},
			Message: `Most active sleep period: hour {{.S.BusiestHour}} of the recording with {{.S.BusiestHourEvents}} {{plural .S.BusiestHourEvents "event" "events"}}.`,
		},
		{
			Name:    "event_counts",
			Tier:    Informational,
			Metrics: []string{"disturbances"},
			Trigger: func(in Input) (float64, bool) {
				return float64(in.S.Disturbances), in.S.Disturbances > 0
			},
			Message: `Detected {{.S.Disturbances}} {{plural .S.Disturbances "disturbance" "disturbances"}}: {{.Snore.Count}} snoring, {{.Cough.Count}} cough or speech, {{.Other.Count}} other.`,
		},
		{
			Name:    QuietNightRule,
			Tier:    Informational,
			Metrics: []string{"disturbances"},
			Trigger: func(in Input) (float64, bool) {
				return 0, in.S.Disturbances == 0
			},
			Message: `Quiet night: no disturbances detected - very restful night!`,
		},
	}
}
