package eventlog

import (
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// ErrNoSession is returned by EndSession when no session was begun.
var ErrNoSession = errors.New("no active session")

// Store is the sqlite-backed event log.
type Store struct {
	db   *sql.DB
	path string

	mu        sync.Mutex
	sessionID string
}

// OpenStore opens (or creates) the sqlite database at path and brings its
// schema up to date.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SessionID returns the active session ID, or "" before BeginSession.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// BeginSession records a new session and stamps subsequent rows with its ID.
func (s *Store) BeginSession(ctx context.Context, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		id, startedAt.Local().Format(TimeLayout),
	); err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
	return id, nil
}

// EndSession stamps the active session's end time.
func (s *Store) EndSession(ctx context.Context, endedAt time.Time) error {
	id := s.SessionID()
	if id == "" {
		return ErrNoSession
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		endedAt.Local().Format(TimeLayout), id,
	); err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// WriteRows inserts the batch in a single transaction.
func (s *Store) WriteRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	var session sql.NullString
	if id := s.SessionID(); id != "" {
		session = sql.NullString{String: id, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sensor_events (session_id, timestamp, steps, voltage, direction) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, session, r.FormattedTime(), r.StepCount, r.Voltage, r.Direction); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, steps, voltage, direction FROM sensor_events ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var ts string
		var r Row
		if err := rows.Scan(&ts, &r.StepCount, &r.Voltage, &r.Direction); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.ParseInLocation(TimeLayout, ts, time.Local); err != nil {
			return nil, fmt.Errorf("parse stored timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of persisted rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_events`).Scan(&n)
	return n, err
}

// AttachAdminRoutes mounts live SQL and backup endpoints under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.db, &tailsql.DBOptions{
		Label: "Event log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the event log now", http.HandlerFunc(s.handleBackup))
	return nil
}

func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("pressure-backup-%d.db", time.Now().Unix()))
	if _, err := s.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		log.Printf("backup: write failed: %v", err)
	}
}
