// Package orchestrator wires the analysis stages together and handles the
// optional side effects of a run: bundle files, run history, charts and
// archive upload.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/sleepsense/classify"
	"github.com/maastricht-university/sleepsense/clients"
	cfg "github.com/maastricht-university/sleepsense/config"
	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/features"
	"github.com/maastricht-university/sleepsense/insights"
	"github.com/maastricht-university/sleepsense/segment"
	"github.com/maastricht-university/sleepsense/signal"
	"github.com/maastricht-university/sleepsense/store"
)

type Pipeline struct {
	cfg        *cfg.Root
	log        *logrus.Entry
	http       *clients.HTTP
	framer     *signal.Framer
	segmenter  *segment.Segmenter
	classifier classify.Classifier
	engine     *insights.Engine
	store      *store.Store
}

type Option func(*Pipeline)

func WithLogger(l *logrus.Entry) Option { return func(p *Pipeline) { p.log = l } }

// WithClassifier replaces the classifier chosen by configuration.
func WithClassifier(c classify.Classifier) Option { return func(p *Pipeline) { p.classifier = c } }

// WithStore records every Run in s. The caller keeps ownership of s.
func WithStore(s *store.Store) Option { return func(p *Pipeline) { p.store = s } }

// NewPipeline validates c and builds every stage. Configuration errors
// surface here, before any audio is touched.
func NewPipeline(c *cfg.Root, opts ...Option) (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:  c,
		log:  logrus.NewEntry(logrus.StandardLogger()),
		http: clients.NewHTTP(c.Services.Timeout()),
	}

	var err error
	if p.framer, err = signal.NewFramer(c.Framing); err != nil {
		return nil, err
	}
	if p.segmenter, err = segment.New(c.Segmentation); err != nil {
		return nil, err
	}
	if p.engine, err = insights.NewEngine(c.Insights); err != nil {
		return nil, err
	}
	switch c.Classifier.Kind {
	case classify.KindRemote:
		p.classifier = classify.NewRemote(p.http, c.Services.Model.URL)
	default:
		p.classifier = classify.NewRules(c.Classifier.Rules)
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Analyze runs the detection core on an in-memory stream. extCtx may be
// nil. An empty stream is not an error: it yields a zero summary and the
// quiet-night record.
func (p *Pipeline) Analyze(ctx context.Context, stream signal.Stream, extCtx map[string]float64) (*Result, error) {
	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)
	t0 := time.Now()

	if err := stream.Validate(); err != nil {
		return nil, stage("frame", err)
	}
	s, err := signal.Resample(stream, p.cfg.Audio.AnalysisRate)
	if err != nil {
		return nil, stage("resample", err)
	}
	if s.SampleRate != stream.SampleRate {
		log.WithFields(logrus.Fields{"from": stream.SampleRate, "to": s.SampleRate}).Debug("resampled")
	}
	if s.Empty() {
		log.Warn("empty stream, reporting a quiet night")
	}

	seq, err := p.framer.Frame(s)
	if err != nil {
		return nil, stage("frame", err)
	}
	windows := seq.Collect()

	ext, err := features.NewExtractor(features.Config{FullScale: p.cfg.Audio.FullScale}, s.SampleRate)
	if err != nil {
		return nil, stage("extract", err)
	}
	vectors, err := ext.ExtractAll(windows, p.cfg.Pipeline.Workers)
	if err != nil {
		return nil, stage("extract", err)
	}
	log.WithFields(logrus.Fields{"windows": len(windows), "hop_s": seq.HopSeconds()}).Debug("features extracted")

	dets := p.segmenter.Segment(vectors)
	log.WithField("detections", len(dets)).Debug("segmented")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := classify.Apply(ctx, p.classifier, p.cfg.Classifier.ConfidenceFloor, dets)
	if err != nil {
		return nil, stage("classify", err)
	}
	traces := make([][]features.Vector, len(dets))
	for i, d := range dets {
		traces[i] = d.Trace
	}

	summary := insights.Summarize(events, s.Seconds())
	records, err := p.engine.Generate(summary, extCtx)
	if err != nil {
		return nil, stage("insights", err)
	}

	res := &Result{
		RunID:            runID,
		SampleRate:       s.SampleRate,
		RecordingSeconds: s.Seconds(),
		WindowCount:      len(windows),
		HopSeconds:       seq.HopSeconds(),
		Events:           events,
		Traces:           traces,
		Summary:          summary,
		Context:          extCtx,
		Insights:         records,
		Elapsed:          time.Since(t0),
	}
	log.WithFields(logrus.Fields{
		"events":       len(events),
		"disturbances": summary.Disturbances,
		"insights":     len(records),
		"elapsed":      res.Elapsed.Round(time.Millisecond),
	}).Info("analysis complete")
	return res, nil
}

// Run analyzes a raw s16le PCM file and performs every configured side
// effect. Any failing step aborts the run.
func (p *Pipeline) Run(ctx context.Context, pcmPath string, opts RunOptions) (*Result, error) {
	rate := opts.SampleRate
	if rate == 0 {
		rate = p.cfg.Audio.SampleRate
	}
	f, err := os.Open(pcmPath)
	if err != nil {
		return nil, stage("read", err)
	}
	stream, err := signal.ReadPCM16(f, rate)
	f.Close()
	if err != nil {
		return nil, stage("read", err)
	}
	p.log.WithFields(logrus.Fields{"path": pcmPath, "seconds": stream.Seconds(), "sample_rate": rate}).Info("recording loaded")

	fetched, err := p.fetchContext(ctx, stream.Seconds(), opts.RecordedAt)
	if err != nil {
		return nil, stage("context", err)
	}

	res, err := p.Analyze(ctx, stream, mergeContext(fetched, opts.Context))
	if err != nil {
		return nil, err
	}
	res.Source = pcmPath
	log := p.log.WithField("run_id", res.RunID)

	var outDir string
	if p.cfg.Paths.Outputs != "" {
		sid, evPath, repPath, err := persist(p.cfg.Paths.Outputs, p.cfg.Paths.Format, pcmPath, res)
		if err != nil {
			return nil, stage("persist", err)
		}
		res.BundlePath = repPath
		outDir = filepath.Dir(repPath)
		log.WithFields(logrus.Fields{"session": sid, "events": evPath, "report": repPath}).Info("bundle written")
	}

	if p.store != nil {
		if err := p.store.SaveRun(ctx, &store.Run{
			ID:               res.RunID,
			CreatedAt:        time.Now(),
			Source:           pcmPath,
			SampleRate:       res.SampleRate,
			RecordingSeconds: res.RecordingSeconds,
			Summary:          res.Summary,
			Context:          res.Context,
			Events:           res.Events,
			Traces:           res.Traces,
			Insights:         res.Insights,
		}); err != nil {
			return nil, stage("store", err)
		}
		log.Debug("run saved to history")
	}

	if svc := p.cfg.Services.Visualization; svc.Enabled() {
		tl, err := p.http.GenerateTimeline(ctx, svc.URL, timelineRequest(res.Events, outDir))
		if err != nil {
			return nil, stage("visualize", errs.ExternalService("visualization", err))
		}
		rd, err := p.http.GenerateRadar(ctx, svc.URL, radarRequest(res.Summary, outDir))
		if err != nil {
			return nil, stage("visualize", errs.ExternalService("visualization", err))
		}
		res.Charts = append(res.Charts, tl.Path, rd.Path)
		log.WithField("charts", res.Charts).Info("charts generated")
	}

	if svc := p.cfg.Services.Archive; svc.Enabled() {
		if res.BundlePath == "" {
			return nil, stage("archive", fmt.Errorf("no bundle to upload: paths.outputs is empty"))
		}
		ar, err := p.http.Archive(ctx, svc.URL, res.BundlePath, res.RunID)
		if err != nil {
			return nil, stage("archive", errs.ExternalService("archive", err))
		}
		res.ArchiveLocation = ar.Location
		log.WithField("location", ar.Location).Info("bundle archived")
	}

	return res, nil
}

// fetchContext asks the context service for metrics over the recording
// period. Without a configured service there is no context.
func (p *Pipeline) fetchContext(ctx context.Context, seconds float64, recordedAt time.Time) (map[string]float64, error) {
	svc := p.cfg.Services.Context
	if !svc.Enabled() {
		return nil, nil
	}
	length := time.Duration(seconds * float64(time.Second))
	from := recordedAt
	if from.IsZero() {
		from = time.Now().Add(-length)
	}
	resp, err := p.http.Context(ctx, svc.URL, clients.ContextReq{
		From:    from.UTC(),
		To:      from.Add(length).UTC(),
		Metrics: []string{insights.Humidity, insights.Steps, insights.Temperature},
	})
	if err != nil {
		return nil, errs.ExternalService("context", err)
	}
	p.log.WithField("metrics", len(resp.Metrics)).Debug("context fetched")
	return resp.Metrics, nil
}
