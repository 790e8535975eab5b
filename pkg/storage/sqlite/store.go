// Package sqlite stores snapped traces and run records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/util"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it to the
// latest schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction runs fn inside a transaction, rolling back when fn fails or
// panics.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Segments    int
	Failed      int
	RowsWritten int
}

func formatTime(t time.Time) string {
	return t.Format(da.OutputTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(da.TimeLayout, s)
}

func (s *Store) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at) VALUES (?, ?)",
		runID, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, rec RunRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, segments = ?, failed = ?, rows_written = ?
		 WHERE run_id = ?`,
		formatTime(rec.FinishedAt), rec.Segments, rec.Failed, rec.RowsWritten, rec.RunID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", rec.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return util.WrapErrorf(nil, util.ErrNotFound, "run %s not found", rec.RunID)
	}
	return nil
}

func (s *Store) Run(ctx context.Context, runID string) (RunRecord, error) {
	var (
		rec        RunRecord
		startedAt  string
		finishedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, segments, failed, rows_written
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &startedAt, &finishedAt, &rec.Segments, &rec.Failed, &rec.RowsWritten)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, util.WrapErrorf(err, util.ErrNotFound, "run %s not found", runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}

	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return RunRecord{}, err
	}
	if finishedAt.Valid {
		if rec.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return RunRecord{}, err
		}
	}
	return rec, nil
}

// InsertPoints stores points in one transaction. A point with ID 0 gets an id
// assigned by the database.
func (s *Store) InsertPoints(ctx context.Context, points []da.PathPoint) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		return insertPoints(ctx, tx, points)
	})
}

func insertPoints(ctx context.Context, tx *sql.Tx, points []da.PathPoint) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO path (id, run_id, datetime, latitude, longitude, original_ish)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		var id, runID any
		if p.ID > 0 {
			id = p.ID
		}
		if p.RunID != "" {
			runID = p.RunID
		}
		original := 0
		if p.Original {
			original = 1
		}
		if _, err := stmt.ExecContext(ctx, id, runID, formatTime(p.Time), p.Lat, p.Lon, original); err != nil {
			if isUniqueViolation(err) {
				return util.WrapErrorf(err, util.ErrConflict, "point id %d already exists", p.ID)
			}
			return fmt.Errorf("insert point at %s: %w", formatTime(p.Time), err)
		}
	}
	return nil
}

// QueryRange returns the points with start <= datetime <= end in
// chronological order.
func (s *Store) QueryRange(ctx context.Context, start, end time.Time) ([]da.PathPoint, error) {
	return s.queryPoints(ctx,
		`SELECT id, run_id, datetime, latitude, longitude, original_ish FROM path
		 WHERE datetime >= ? AND datetime <= ? ORDER BY datetime ASC, id ASC`,
		formatTime(start), formatTime(end))
}

func (s *Store) AllPoints(ctx context.Context) ([]da.PathPoint, error) {
	return s.queryPoints(ctx,
		`SELECT id, run_id, datetime, latitude, longitude, original_ish FROM path
		 ORDER BY datetime ASC, id ASC`)
}

func (s *Store) queryPoints(ctx context.Context, query string, args ...any) ([]da.PathPoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query path: %w", err)
	}
	defer rows.Close()

	var points []da.PathPoint
	for rows.Next() {
		var (
			p        da.PathPoint
			runID    sql.NullString
			datetime string
			original int
		)
		if err := rows.Scan(&p.ID, &runID, &datetime, &p.Lat, &p.Lon, &original); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		if p.Time, err = parseTime(datetime); err != nil {
			return nil, fmt.Errorf("path row %d: %w", p.ID, err)
		}
		p.RunID = runID.String
		p.Original = original == 1
		points = append(points, p)
	}
	return points, rows.Err()
}

// PathSink writes flushed rows of one run into the path table, one
// transaction per flush.
type PathSink struct {
	ctx   context.Context
	store *Store
	runID string
}

func (s *Store) Sink(ctx context.Context, runID string) *PathSink {
	return &PathSink{ctx: ctx, store: s, runID: runID}
}

func (ps *PathSink) WriteRows(rows []da.DensifiedRow) error {
	points := make([]da.PathPoint, len(rows))
	for i, r := range rows {
		points[i] = da.PathPoint{
			RunID:    ps.runID,
			Time:     r.Time,
			Lat:      r.Lat,
			Lon:      r.Lon,
			Original: r.Original,
		}
	}
	return ps.store.InsertPoints(ps.ctx, points)
}

func isUniqueViolation(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes disabled
		return strings.Contains(serr.Error(), "UNIQUE constraint failed")
	}
	return false
}
