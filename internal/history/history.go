// Package history persists allocation runs to a local SQLite database so
// every pricing decision stays auditable after the fact.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when the requested run does not exist.
var ErrNotFound = errors.New("allocation run not found")

// Run records one allocation pass: the target it aimed for, what it
// achieved, and the per-item assignments.
type Run struct {
	ID          string
	CreatedAt   time.Time
	TargetSum   float64
	AchievedSum float64
	Residual    float64
	Exact       bool
	Items       []RunItem
}

// RunItem is one product's line within a recorded run.
type RunItem struct {
	ProductID    string
	Weight       float64
	Multiplicity float64
	Assigned     int64
	Ideal        float64
}

// Repository stores allocation runs in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the run history database at path and
// ensures the schema exists.
func Open(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	// WAL keeps concurrent readers cheap while a run is being recorded.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS allocation_runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	target_sum REAL NOT NULL,
	achieved_sum REAL NOT NULL,
	residual REAL NOT NULL,
	exact INTEGER NOT NULL,
	item_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS allocation_run_items (
	run_id TEXT NOT NULL REFERENCES allocation_runs(id) ON DELETE CASCADE,
	product_id TEXT NOT NULL,
	weight REAL NOT NULL,
	multiplicity REAL NOT NULL,
	assigned INTEGER NOT NULL,
	ideal REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocation_run_items_run ON allocation_run_items(run_id);
`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// Record inserts a run and its item lines in one transaction.
func (r *Repository) Record(run Run) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(
		`INSERT INTO allocation_runs
		 (id, created_at, target_sum, achieved_sum, residual, exact, item_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.TargetSum,
		run.AchievedSum,
		run.Residual,
		boolToInt(run.Exact),
		len(run.Items),
	)
	if err != nil {
		return fmt.Errorf("insert allocation run: %w", err)
	}

	for _, it := range run.Items {
		_, err = tx.Exec(
			`INSERT INTO allocation_run_items
			 (run_id, product_id, weight, multiplicity, assigned, ideal)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, it.ProductID, it.Weight, it.Multiplicity, it.Assigned, it.Ideal,
		)
		if err != nil {
			return fmt.Errorf("insert allocation run item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocation run: %w", err)
	}
	return nil
}

// Recent returns up to limit run summaries, newest first, without item
// lines.
func (r *Repository) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		`SELECT id, created_at, target_sum, achieved_sum, residual, exact
		 FROM allocation_runs
		 ORDER BY created_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query allocation runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocation runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its item lines.
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, created_at, target_sum, achieved_sum, residual, exact
		 FROM allocation_runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT product_id, weight, multiplicity, assigned, ideal
		 FROM allocation_run_items WHERE run_id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query allocation run items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it RunItem
		if err := rows.Scan(&it.ProductID, &it.Weight, &it.Multiplicity, &it.Assigned, &it.Ideal); err != nil {
			return nil, fmt.Errorf("scan allocation run item: %w", err)
		}
		run.Items = append(run.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocation run items: %w", err)
	}

	return &run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		createdAt string
		exact     int
	)
	if err := row.Scan(&run.ID, &createdAt, &run.TargetSum, &run.AchievedSum, &run.Residual, &exact); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan allocation run: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp: %w", err)
	}
	run.CreatedAt = ts
	run.Exact = exact != 0
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
