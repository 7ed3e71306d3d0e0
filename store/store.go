// Package store keeps a history of analysis runs in SQLite.
//
// Layout under the store directory:
//
//	sleepsense.db   runs, events and insight records
//
// Summaries, external context and per-event feature traces are stored as
// msgpack blobs; everything a query filters on is a plain column.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/vmihailenco/msgpack/v5"

	"github.com/maastricht-university/sleepsense/errs"
	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/features"
	"github.com/maastricht-university/sleepsense/insights"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one persisted analysis.
type Run struct {
	ID               string             `json:"id"`
	CreatedAt        time.Time          `json:"created_at"`
	Source           string             `json:"source,omitempty"`
	SampleRate       int                `json:"sample_rate"`
	RecordingSeconds float64            `json:"recording_seconds"`
	Summary          insights.Summary   `json:"summary"`
	Context          map[string]float64 `json:"context,omitempty"`

	// Events, Traces and Insights are only filled by Load. Traces, when
	// present, is parallel to Events.
	Events   []event.Event       `json:"events,omitempty"`
	Traces   [][]features.Vector `json:"-"`
	Insights []insights.Record   `json:"insights,omitempty"`
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database in dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Storage("create store directory", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "sleepsense.db")+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errs.Storage("open database", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errs.Storage("initialize schema", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT,
		sample_rate INTEGER NOT NULL,
		recording_seconds REAL NOT NULL,
		disturbances INTEGER NOT NULL,
		summary BLOB NOT NULL,
		context BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		start REAL NOT NULL,
		duration REAL NOT NULL,
		category TEXT NOT NULL,
		peak_volume REAL NOT NULL,
		confidence REAL NOT NULL,
		trace BLOB,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);

	CREATE TABLE IF NOT EXISTS insights (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		rule TEXT NOT NULL,
		priority TEXT NOT NULL,
		body TEXT NOT NULL,
		metrics TEXT,
		magnitude REAL NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_insights_rule ON insights(rule);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun writes a run with its events and insight records in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	if r.Traces != nil && len(r.Traces) != len(r.Events) {
		return errs.Storage("save run", fmt.Errorf("%d traces for %d events", len(r.Traces), len(r.Events)))
	}
	summary, err := msgpack.Marshal(r.Summary)
	if err != nil {
		return errs.Storage("encode summary", err)
	}
	var extCtx []byte
	if r.Context != nil {
		if extCtx, err = msgpack.Marshal(r.Context); err != nil {
			return errs.Storage("encode context", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, sample_rate, recording_seconds, disturbances, summary, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.CreatedAt.UTC(), r.Source, r.SampleRate, r.RecordingSeconds, r.Summary.Disturbances, summary, extCtx); err != nil {
		return errs.Storage("insert run", err)
	}

	for i, ev := range r.Events {
		var trace []byte
		if r.Traces != nil {
			if trace, err = msgpack.Marshal(r.Traces[i]); err != nil {
				return errs.Storage("encode trace", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (run_id, seq, start, duration, category, peak_volume, confidence, trace)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, ev.Start, ev.Duration, string(ev.Category), ev.PeakVolume, ev.Confidence, trace); err != nil {
			return errs.Storage("insert event", err)
		}
	}

	for i, rec := range r.Insights {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO insights (run_id, seq, rule, priority, body, metrics, magnitude)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, rec.Rule, rec.Priority.String(), rec.Text, strings.Join(rec.Metrics, ","), rec.Magnitude); err != nil {
			return errs.Storage("insert insight", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit", err)
	}
	return nil
}

// RecentRuns lists the newest runs first, without events or insights.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, source, sample_rate, recording_seconds, summary, context
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, errs.Storage("query runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("query runs", err)
	}
	return out, nil
}

// Load returns the run with its events, traces and insight records.
func (s *Store) Load(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, sample_rate, recording_seconds, summary, context
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Storage("load run "+id, ErrNotFound)
		}
		return nil, err
	}
	if err := s.loadEvents(ctx, r); err != nil {
		return nil, err
	}
	if err := s.loadInsights(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r       Run
		source  sql.NullString
		summary []byte
		extCtx  []byte
	)
	if err := sc.Scan(&r.ID, &r.CreatedAt, &source, &r.SampleRate, &r.RecordingSeconds, &summary, &extCtx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.Storage("scan run", err)
	}
	r.Source = source.String
	if err := msgpack.Unmarshal(summary, &r.Summary); err != nil {
		return nil, errs.Storage("decode summary", err)
	}
	if len(extCtx) > 0 {
		if err := msgpack.Unmarshal(extCtx, &r.Context); err != nil {
			return nil, errs.Storage("decode context", err)
		}
	}
	return &r, nil
}

func (s *Store) loadEvents(ctx context.Context, r *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start, duration, category, peak_volume, confidence, trace
		FROM events WHERE run_id = ? ORDER BY seq
	`, r.ID)
	if err != nil {
		return errs.Storage("query events", err)
	}
	defer rows.Close()

	hasTrace := false
	var traces [][]features.Vector
	for rows.Next() {
		var (
			ev    event.Event
			cat   string
			trace []byte
		)
		if err := rows.Scan(&ev.Start, &ev.Duration, &cat, &ev.PeakVolume, &ev.Confidence, &trace); err != nil {
			return errs.Storage("scan event", err)
		}
		ev.Category = event.Category(cat)
		r.Events = append(r.Events, ev)

		var vs []features.Vector
		if len(trace) > 0 {
			hasTrace = true
			if err := msgpack.Unmarshal(trace, &vs); err != nil {
				return errs.Storage("decode trace", err)
			}
		}
		traces = append(traces, vs)
	}
	if err := rows.Err(); err != nil {
		return errs.Storage("query events", err)
	}
	if hasTrace {
		r.Traces = traces
	}
	return nil
}

func (s *Store) loadInsights(ctx context.Context, r *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, priority, body, metrics, magnitude
		FROM insights WHERE run_id = ? ORDER BY seq
	`, r.ID)
	if err != nil {
		return errs.Storage("query insights", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      insights.Record
			priority string
			metrics  sql.NullString
		)
		if err := rows.Scan(&rec.Rule, &priority, &rec.Text, &metrics, &rec.Magnitude); err != nil {
			return errs.Storage("scan insight", err)
		}
		if rec.Priority, err = insights.ParseTier(priority); err != nil {
			return errs.Storage("scan insight", err)
		}
		if metrics.String != "" {
			rec.Metrics = strings.Split(metrics.String, ",")
		}
		r.Insights = append(r.Insights, rec)
	}
	if err := rows.Err(); err != nil {
		return errs.Storage("query insights", err)
	}
	return nil
}

// Delete removes a run and everything recorded for it.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errs.Storage("delete run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Storage("delete run "+id, ErrNotFound)
	}
	return nil
}
