// Package sqlite stores scalar summaries in a SQLite database.
//
// Every training run gets a row in the runs table keyed by a random UUID;
// scalars are keyed by (run, tag, step), so re-emitting a step overwrites it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/hupe1980/dgcnn/summary"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is a summary database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp runs all pending migrations.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunInfo describes a recorded run.
type RunInfo struct {
	ID         string
	Name       string
	Config     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Run is a summary.Writer bound to one run.
type Run struct {
	db *DB
	id string
}

var _ summary.Writer = (*Run)(nil)

// StartRun inserts a new run. config is stored verbatim (typically the
// JSON-encoded training configuration).
func (db *DB) StartRun(ctx context.Context, name, config string) (*Run, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, name, config, started_at) VALUES (?, ?, ?, ?)`,
		id, name, config, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite: start run: %w", err)
	}
	return &Run{db: db, id: id}, nil
}

// ID returns the run's UUID.
func (r *Run) ID() string { return r.id }

// Scalar records value for (tag, step), replacing an earlier value.
// NaN is stored as NULL.
func (r *Run) Scalar(ctx context.Context, step int64, tag string, value float64) error {
	var v sql.NullFloat64
	if !math.IsNaN(value) {
		v = sql.NullFloat64{Float64: value, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scalars (run_id, tag, step, value, wall_time) VALUES (?, ?, ?, ?, ?)`,
		r.id, tag, step, v, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: record %s@%d: %w", tag, step, err)
	}
	return nil
}

// Close marks the run finished. The database stays open.
func (r *Run) Close() error {
	_, err := r.db.Exec(`UPDATE runs SET finished_at = ? WHERE run_id = ?`, time.Now().UnixMilli(), r.id)
	return err
}

// Runs lists all runs, oldest first.
func (db *DB) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, name, COALESCE(config, ''), started_at, finished_at FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info     RunInfo
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&info.ID, &info.Name, &info.Config, &started, &finished); err != nil {
			return nil, err
		}
		info.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			info.FinishedAt = time.UnixMilli(finished.Int64)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Scalars returns the values of tag in run, ordered by step.
func (db *DB) Scalars(ctx context.Context, runID, tag string) ([]summary.Point, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT step, value FROM scalars WHERE run_id = ? AND tag = ? ORDER BY step`, runID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []summary.Point
	for rows.Next() {
		var (
			step  int64
			value sql.NullFloat64
		)
		if err := rows.Scan(&step, &value); err != nil {
			return nil, err
		}
		p := summary.Point{Step: step, Tag: tag, Value: math.NaN()}
		if value.Valid {
			p.Value = value.Float64
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
