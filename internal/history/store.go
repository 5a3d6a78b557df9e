// Package history persists a journal of task run cycles to SQLite so
// completions, failures, and aborts survive daemon restarts and can be
// inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// DefaultKeep is how many run records Store retains when no cap is given.
const DefaultKeep = 10000

// Entry is one recorded run cycle.
type Entry struct {
	ID       int64
	At       time.Time
	TaskID   string
	TaskName string
	Outcome  string
	Took     time.Duration
	Error    string
}

// Store is an append-mostly run journal backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	keep int

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open creates or opens the journal at path. keep caps retained records;
// keep <= 0 uses DefaultKeep.
func Open(path string, keep int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if keep <= 0 {
		keep = DefaultKeep
	}
	st := &Store{db: db, keep: keep, pruneEvery: 100}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one run cycle. The retention cap is enforced lazily every
// pruneEvery appends rather than on each write.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, task_id, task_name, outcome, took_ms, err)
		 VALUES(?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.TaskID, e.TaskName, e.Outcome,
		e.Took.Milliseconds(), nullStr(e.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_ = s.prune(pctx)
		cancel()
	}
	return err
}

// Recent returns up to limit records, newest first. taskName filters to one
// task when non-empty.
func (s *Store) Recent(ctx context.Context, taskName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, at, task_id, task_name, outcome, took_ms, COALESCE(err, '')
	      FROM runs`
	args := []any{}
	if taskName != "" {
		q += ` WHERE task_name = ?`
		args = append(args, taskName)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			at     string
			tookMS int64
		)
		if err := rows.Scan(&e.ID, &at, &e.TaskID, &e.TaskName, &e.Outcome, &tookMS, &e.Error); err != nil {
			return nil, err
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("run %d: bad timestamp %q: %w", e.ID, at, err)
		}
		e.Took = time.Duration(tookMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id <= (SELECT MAX(id) FROM runs) - ?`, s.keep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
