package insights

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"text/template"
)

var funcs = template.FuncMap{
	"minutes": func(sec float64) string {
		return fmt.Sprintf("%d min", int(math.Round(sec/60)))
	},
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return one
		}
		return many
	},
}

type compiled struct {
	Rule
	tmpl *template.Template
}

// Engine evaluates a rule table. It is safe for concurrent use.
type Engine struct {
	rules []compiled
	quiet int // index of the quiet-night rule
	th    Thresholds
}

// NewEngine builds an engine over the default rule table.
func NewEngine(th Thresholds) (*Engine, error) {
	return NewEngineWithRules(th, DefaultRules())
}

// NewEngineWithRules parses every message template up front. The table
// must contain a rule named QuietNightRule; it is the only record of a
// night without disturbances.
func NewEngineWithRules(th Thresholds, rules []Rule) (*Engine, error) {
	e := &Engine{th: th, rules: make([]compiled, 0, len(rules)), quiet: -1}
	seen := map[string]bool{}
	for _, r := range rules {
		if r.Name == "" || r.Trigger == nil {
			return nil, fmt.Errorf("insights: rule %q needs a name and a trigger", r.Name)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("insights: duplicate rule %q", r.Name)
		}
		seen[r.Name] = true

		t, err := template.New(r.Name).Funcs(funcs).Option("missingkey=error").Parse(r.Message)
		if err != nil {
			return nil, fmt.Errorf("insights: rule %s: %w", r.Name, err)
		}
		if r.Name == QuietNightRule {
			e.quiet = len(e.rules)
		}
		e.rules = append(e.rules, compiled{Rule: r, tmpl: t})
	}
	if e.quiet < 0 {
		return nil, fmt.Errorf("insights: rule table has no %s rule", QuietNightRule)
	}
	return e, nil
}

// Generate evaluates every rule independently and returns the firing
// records ordered by tier, then descending magnitude, then table order.
// Rules whose required context is missing are skipped. ctx may be nil.
// A night without disturbances yields the quiet-night record alone.
func (e *Engine) Generate(s Summary, ctx map[string]float64) ([]Record, error) {
	in := Input{S: s, Ctx: usable(ctx), T: e.th}

	if s.Disturbances == 0 {
		rec, err := e.rules[e.quiet].render(in, 0)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	var out []Record
	for _, r := range e.rules {
		if r.Name == QuietNightRule || !in.hasAll(r.Requires) {
			continue
		}
		mag, ok := r.Trigger(in)
		if !ok {
			continue
		}
		rec, err := r.render(in, mag)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Magnitude > out[j].Magnitude
	})
	return out, nil
}

func (r compiled) render(in Input, mag float64) (Record, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, in); err != nil {
		return Record{}, fmt.Errorf("insights: rule %s: %w", r.Name, err)
	}
	return Record{
		Rule:      r.Name,
		Text:      buf.String(),
		Priority:  r.Tier,
		Metrics:   append([]string(nil), r.Metrics...),
		Magnitude: mag,
	}, nil
}

func (in Input) hasAll(keys []string) bool {
	for _, k := range keys {
		if !in.Has(k) {
			return false
		}
	}
	return true
}

// usable drops non-finite context values so they count as absent.
func usable(ctx map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(ctx))
	for k, v := range ctx {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
