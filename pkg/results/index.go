package results

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/jingkaihe/evalet/pkg/logger"
)

// IndexFileName is the SQLite index file inside the results directory.
const IndexFileName = "index.db"

const indexSchema = `
CREATE TABLE IF NOT EXISTS runs (
	path TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	scenario TEXT NOT NULL,
	mode TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	total INTEGER NOT NULL,
	max_total INTEGER NOT NULL,
	percentage REAL NOT NULL,
	timed_out INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_scenario_mode ON runs(scenario, mode, timestamp);
`

// RunSummary is one indexed run, keyed by its result file path.
type RunSummary struct {
	RunID           string  `db:"run_id" json:"run_id,omitempty"`
	Scenario        string  `db:"scenario" json:"scenario"`
	Mode            string  `db:"mode" json:"mode"`
	Timestamp       string  `db:"timestamp" json:"timestamp"`
	Total           int     `db:"total" json:"total"`
	MaxTotal        int     `db:"max_total" json:"max_total"`
	Percentage      float64 `db:"percentage" json:"percentage"`
	TimedOut        bool    `db:"timed_out" json:"timed_out"`
	DurationSeconds int     `db:"duration_seconds" json:"duration_seconds"`
	Path            string  `db:"path" json:"path"`
}

// Index is a SQLite index over result documents for fast listing and
// latest-run lookups without rescanning the results directory.
type Index struct {
	db *sqlx.DB
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create index directory")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open index database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping index database")
	}
	if err := configureIndex(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure index database")
	}
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize index schema")
	}

	return &Index{db: db}, nil
}

// configureIndex sets up SQLite pragmas for WAL mode.
func configureIndex(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}
	return nil
}

// Close closes the index database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Upsert records a result document stored at path, replacing any earlier
// entry for the same file.
func (x *Index) Upsert(ctx context.Context, doc *Document, path string) error {
	summary := RunSummary{
		RunID:           doc.RunID,
		Scenario:        doc.Scenario,
		Mode:            doc.Mode,
		Timestamp:       doc.Timestamp,
		Total:           doc.Score.Total,
		MaxTotal:        doc.Score.MaxTotal,
		Percentage:      doc.Score.Percentage,
		TimedOut:        doc.TimedOut,
		DurationSeconds: doc.Timing.DurationSeconds,
		Path:            path,
	}

	query := `
		INSERT INTO runs (path, run_id, scenario, mode, timestamp, total, max_total, percentage, timed_out, duration_seconds)
		VALUES (:path, :run_id, :scenario, :mode, :timestamp, :total, :max_total, :percentage, :timed_out, :duration_seconds)
		ON CONFLICT(path) DO UPDATE SET
			run_id = excluded.run_id,
			scenario = excluded.scenario,
			mode = excluded.mode,
			timestamp = excluded.timestamp,
			total = excluded.total,
			max_total = excluded.max_total,
			percentage = excluded.percentage,
			timed_out = excluded.timed_out,
			duration_seconds = excluded.duration_seconds`

	if _, err := x.db.NamedExecContext(ctx, query, summary); err != nil {
		return errors.Wrap(err, "failed to upsert run")
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Scenario string
	Mode     string
	Limit    int
}

// List returns indexed runs, newest first.
func (x *Index) List(ctx context.Context, opts ListOptions) ([]RunSummary, error) {
	query := "SELECT path, run_id, scenario, mode, timestamp, total, max_total, percentage, timed_out, duration_seconds FROM runs"
	var clauses []string
	var args []interface{}

	if opts.Scenario != "" {
		clauses = append(clauses, "scenario = ?")
		args = append(args, opts.Scenario)
	}
	if opts.Mode != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, opts.Mode)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, scenario ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var runs []RunSummary
	if err := x.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

// Get returns the run recorded with the given run ID, or sql.ErrNoRows
// (wrapped) when the ID is unknown.
func (x *Index) Get(ctx context.Context, runID string) (*RunSummary, error) {
	query := `SELECT path, run_id, scenario, mode, timestamp, total, max_total, percentage, timed_out, duration_seconds
		FROM runs WHERE run_id = ? ORDER BY timestamp DESC LIMIT 1`

	var run RunSummary
	if err := x.db.GetContext(ctx, &run, query, runID); err != nil {
		return nil, errors.Wrapf(err, "failed to load run %s", runID)
	}
	return &run, nil
}

// Latest returns the most recent run for a scenario/mode pair, or
// sql.ErrNoRows (wrapped) when none is recorded.
func (x *Index) Latest(ctx context.Context, scenario, mode string) (*RunSummary, error) {
	query := `SELECT path, run_id, scenario, mode, timestamp, total, max_total, percentage, timed_out, duration_seconds
		FROM runs WHERE scenario = ? AND mode = ? ORDER BY timestamp DESC LIMIT 1`

	var run RunSummary
	if err := x.db.GetContext(ctx, &run, query, scenario, mode); err != nil {
		return nil, errors.Wrapf(err, "failed to load latest run for %s/%s", scenario, mode)
	}
	return &run, nil
}

// Reindex rebuilds the index from the result files under dir. Unreadable
// files are logged and skipped. Returns the number of runs indexed.
func (x *Index) Reindex(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read results directory")
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := LoadDocument(path)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("skipping unreadable result file")
			continue
		}
		if err := x.Upsert(ctx, doc, path); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
