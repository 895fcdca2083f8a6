// Package journal records cleanup runs in a SQLite database so eviction
// history survives restarts and can be inspected with "memgraph history".
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JNZader/memgraph/internal/graph"
)

// Run is one recorded cleanup pass.
type Run struct {
	ID                  int64     `json:"id"`
	RanAt               time.Time `json:"ran_at"`
	MinImportance       float64   `json:"min_importance"`
	MinRelationStrength float64   `json:"min_relation_strength"`
	NodesEvicted        int       `json:"nodes_evicted"`
	RelationsCascaded   int       `json:"relations_cascaded"`
	RelationsEvicted    int       `json:"relations_evicted"`
	Total               int       `json:"total"`
	NodeCountAfter      int       `json:"node_count_after"`
	RelationCountAfter  int       `json:"relation_count_after"`
}

// NewRun builds a Run from a cleanup report and the graph sizes left after it.
func NewRun(ranAt time.Time, minImportance, minRelationStrength float64, report graph.CleanupReport, nodesAfter, relationsAfter int) *Run {
	return &Run{
		RanAt:               ranAt,
		MinImportance:       minImportance,
		MinRelationStrength: minRelationStrength,
		NodesEvicted:        report.NodesEvicted,
		RelationsCascaded:   report.RelationsCascaded,
		RelationsEvicted:    report.RelationsEvicted,
		Total:               report.Total(),
		NodeCountAfter:      nodesAfter,
		RelationCountAfter:  relationsAfter,
	}
}

// Totals aggregates every recorded run.
type Totals struct {
	Runs              int64     `json:"runs"`
	NodesEvicted      int64     `json:"nodes_evicted"`
	RelationsCascaded int64     `json:"relations_cascaded"`
	RelationsEvicted  int64     `json:"relations_evicted"`
	LastRun           time.Time `json:"last_run,omitempty"`
}

// Config configures the journal.
type Config struct {
	// Path is the SQLite database file path. Parent directories are created.
	Path string
}

// Journal is a SQLite-backed log of cleanup runs.
type Journal struct {
	db *sql.DB
}

// NewJournal opens or creates the journal database.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return j, nil
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cleanup_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ran_at DATETIME NOT NULL,
			min_importance REAL NOT NULL,
			min_relation_strength REAL NOT NULL,
			nodes_evicted INTEGER NOT NULL DEFAULT 0,
			relations_cascaded INTEGER NOT NULL DEFAULT 0,
			relations_evicted INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			node_count_after INTEGER NOT NULL DEFAULT 0,
			relation_count_after INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cleanup_runs_ran_at ON cleanup_runs(ran_at)`,
	}

	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	return nil
}

// Record stores run and sets its ID.
func (j *Journal) Record(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.RanAt.IsZero() {
		run.RanAt = time.Now()
	}

	query := `INSERT INTO cleanup_runs (
		ran_at, min_importance, min_relation_strength, nodes_evicted,
		relations_cascaded, relations_evicted, total, node_count_after,
		relation_count_after
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := j.db.ExecContext(ctx, query,
		run.RanAt.UTC(), run.MinImportance, run.MinRelationStrength, run.NodesEvicted,
		run.RelationsCascaded, run.RelationsEvicted, run.Total, run.NodeCountAfter,
		run.RelationCountAfter,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	id, _ := result.LastInsertId()
	run.ID = id
	return nil
}

// Recent returns up to limit runs, newest first. A non-positive limit
// defaults to 20.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ran_at, min_importance, min_relation_strength, nodes_evicted,
		       relations_cascaded, relations_evicted, total, node_count_after,
		       relation_count_after
		FROM cleanup_runs
		ORDER BY ran_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.RanAt, &r.MinImportance, &r.MinRelationStrength, &r.NodesEvicted,
			&r.RelationsCascaded, &r.RelationsEvicted, &r.Total, &r.NodeCountAfter,
			&r.RelationCountAfter,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// Totals sums every recorded run.
func (j *Journal) Totals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(nodes_evicted), 0),
		       COALESCE(SUM(relations_cascaded), 0),
		       COALESCE(SUM(relations_evicted), 0)
		FROM cleanup_runs`,
	).Scan(&t.Runs, &t.NodesEvicted, &t.RelationsCascaded, &t.RelationsEvicted); err != nil {
		return nil, fmt.Errorf("summing runs: %w", err)
	}

	if t.Runs == 0 {
		return &t, nil
	}

	var last sql.NullTime
	if err := j.db.QueryRowContext(ctx,
		`SELECT ran_at FROM cleanup_runs ORDER BY ran_at DESC, id DESC LIMIT 1`,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("reading last run: %w", err)
	}
	if last.Valid {
		t.LastRun = last.Time
	}

	return &t, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
