package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mdi-sim/mdi-sim/sim/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    strategy     TEXT    NOT NULL,
    model        TEXT    NOT NULL DEFAULT '',
    seed         INTEGER NOT NULL DEFAULT 0,
    started_at   INTEGER NOT NULL, -- unix nanoseconds, UTC
    duration_ns  INTEGER NOT NULL DEFAULT 0,
    best_score   REAL    NOT NULL,
    evaluations  INTEGER NOT NULL DEFAULT 0,
    cache_hits   INTEGER NOT NULL DEFAULT 0,
    iterations   INTEGER NOT NULL DEFAULT 0,
    reason       TEXT    NOT NULL DEFAULT '',
    dosage       TEXT    NOT NULL, -- JSON array
    improvements TEXT    NOT NULL  -- JSON array
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

const selectRun = `SELECT id, strategy, model, seed, started_at, duration_ns, best_score,
    evaluations, cache_hits, iterations, reason, dosage, improvements FROM runs`

// SQLiteStore archives runs in a SQLite database (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps ":memory:" on one connection
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("store.Save: run has no ID")
	}
	dosage, err := json.Marshal(run.Dosage)
	if err != nil {
		return fmt.Errorf("store.Save: encode dosage: %w", err)
	}
	improvements := run.Improvements
	if improvements == nil {
		improvements = []trace.ImprovementRecord{}
	}
	imps, err := json.Marshal(improvementRows(improvements))
	if err != nil {
		return fmt.Errorf("store.Save: encode improvements: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs
        (id, strategy, model, seed, started_at, duration_ns, best_score, evaluations, cache_hits, iterations, reason, dosage, improvements)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            strategy = excluded.strategy, model = excluded.model, seed = excluded.seed,
            started_at = excluded.started_at, duration_ns = excluded.duration_ns,
            best_score = excluded.best_score, evaluations = excluded.evaluations,
            cache_hits = excluded.cache_hits, iterations = excluded.iterations,
            reason = excluded.reason, dosage = excluded.dosage, improvements = excluded.improvements`,
		run.ID, run.Strategy, run.Model, run.Seed, run.StartedAt.UTC().UnixNano(), int64(run.Duration),
		run.BestScore, run.Evaluations, run.CacheHits, run.Iterations, run.Reason, string(dosage), string(imps),
	)
	if err != nil {
		return fmt.Errorf("store.Save: insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("store.Get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("store.Get %q: %w", id, err)
	}
	return run, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunRecord, error) {
	query := selectRun + ` ORDER BY started_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store.List: query: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store.List: scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		run                  RunRecord
		startedAt, duration  int64
		dosage, improvements string
	)
	err := row.Scan(&run.ID, &run.Strategy, &run.Model, &run.Seed, &startedAt, &duration, &run.BestScore,
		&run.Evaluations, &run.CacheHits, &run.Iterations, &run.Reason, &dosage, &improvements)
	if err != nil {
		return RunRecord{}, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.Duration = time.Duration(duration)
	if err := json.Unmarshal([]byte(dosage), &run.Dosage); err != nil {
		return RunRecord{}, fmt.Errorf("decode dosage: %w", err)
	}
	var rows []improvementRow
	if err := json.Unmarshal([]byte(improvements), &rows); err != nil {
		return RunRecord{}, fmt.Errorf("decode improvements: %w", err)
	}
	run.Improvements = make([]trace.ImprovementRecord, len(rows))
	for i, r := range rows {
		run.Improvements[i] = r.record()
	}
	return run, nil
}

// improvementRow is the JSON form of an improvement. JSON has no infinity, so
// the first record's +Inf Previous is stored as null.
type improvementRow struct {
	Iteration  int       `json:"iteration"`
	Evaluation int       `json:"evaluation"`
	Score      float64   `json:"score"`
	Previous   *float64  `json:"previous"`
	Dosage     []float64 `json:"dosage"`
}

func improvementRows(records []trace.ImprovementRecord) []improvementRow {
	rows := make([]improvementRow, len(records))
	for i, r := range records {
		rows[i] = improvementRow{Iteration: r.Iteration, Evaluation: r.Evaluation, Score: r.Score, Dosage: r.Dosage}
		if !math.IsInf(r.Previous, 0) {
			prev := r.Previous
			rows[i].Previous = &prev
		}
	}
	return rows
}

func (r improvementRow) record() trace.ImprovementRecord {
	prev := math.Inf(1)
	if r.Previous != nil {
		prev = *r.Previous
	}
	return trace.ImprovementRecord{Iteration: r.Iteration, Evaluation: r.Evaluation, Score: r.Score, Previous: prev, Dosage: r.Dosage}
}
