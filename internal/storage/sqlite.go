package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store wraps a SQLite database holding the local run and schedule history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "chesscoach.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: ":memory:" databases are per-connection, and it avoids
	// "database is locked" between the UI handlers and the watcher.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// --- Runs ---

const runColumns = `run_id, date, status, attempts, next_check, created_at, updated_at, last_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var nextCheck, createdAt, updatedAt string
	if err := row.Scan(&r.RunID, &r.Date, &r.Status, &r.Attempts, &nextCheck, &createdAt, &updatedAt, &r.LastError); err != nil {
		return Run{}, err
	}
	var err error
	if r.NextCheck, err = parseTime("next_check", nextCheck); err != nil {
		return Run{}, err
	}
	if r.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Run{}, err
	}
	if r.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Run{}, err
	}
	return r, nil
}

// SaveRun records a run handle as pending. Saving an id that already exists
// resets it to pending, since the service reuses ids for re-runs.
func (s *Store) SaveRun(r Run) error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	now := time.Now().UTC()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	nextCheck := r.NextCheck
	if nextCheck.IsZero() {
		nextCheck = now
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, date, status, attempts, next_check, created_at, updated_at, last_error)
		VALUES (?, ?, 'pending', 0, ?, ?, ?, '')
		ON CONFLICT(run_id) DO UPDATE SET
			date = excluded.date,
			status = 'pending',
			attempts = 0,
			next_check = excluded.next_check,
			updated_at = excluded.updated_at,
			last_error = ''`,
		r.RunID, r.Date, formatTime(nextCheck), formatTime(createdAt), formatTime(now),
	)
	return err
}

func (s *Store) GetRun(runID string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun() (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ClaimDueRun picks the pending run with the earliest next_check that is due,
// counts the attempt, and pushes its next_check out by lease so that a
// concurrent poller skips it. Returns nil when nothing is due.
func (s *Store) ClaimDueRun(lease time.Duration) (*Run, error) {
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	r, err := scanRun(tx.QueryRow(`SELECT `+runColumns+` FROM runs
		WHERE status = 'pending' AND next_check <= ?
		ORDER BY next_check ASC, created_at ASC
		LIMIT 1`, formatTime(now)))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting due run: %w", err)
	}

	leased := now.Add(lease)
	res, err := tx.Exec(`UPDATE runs SET attempts = attempts + 1, next_check = ?, updated_at = ?
		WHERE run_id = ? AND status = 'pending'`,
		formatTime(leased), formatTime(now), r.RunID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("leasing run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking leased run rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	r.Attempts++
	r.NextCheck = leased
	r.UpdatedAt = now
	return &r, nil
}

func (s *Store) updateRun(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRunReady records that the service has produced results for the run.
func (s *Store) MarkRunReady(runID string) error {
	return s.updateRun(`UPDATE runs SET status = 'ready', last_error = '', updated_at = ? WHERE run_id = ?`,
		formatTime(time.Now()), runID)
}

// DeferRun keeps the run pending and schedules the next check.
func (s *Store) DeferRun(runID string, next time.Time, errMsg string) error {
	return s.updateRun(`UPDATE runs SET next_check = ?, last_error = ?, updated_at = ? WHERE run_id = ?`,
		formatTime(next), errMsg, formatTime(time.Now()), runID)
}

// ExpireRun stops polling a run.
func (s *Store) ExpireRun(runID string, errMsg string) error {
	return s.updateRun(`UPDATE runs SET status = 'expired', last_error = ?, updated_at = ? WHERE run_id = ?`,
		errMsg, formatTime(time.Now()), runID)
}

// --- Schedules ---

func (s *Store) SaveSchedule(rec ScheduleRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("schedule id is required")
	}
	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO schedules (id, date, frequency, status_code, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Date, rec.Frequency, rec.StatusCode, formatTime(submitted),
	)
	return err
}

// ListSchedules returns up to limit schedule submissions, newest first.
func (s *Store) ListSchedules(limit int) ([]ScheduleRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, date, frequency, status_code, submitted_at
		FROM schedules ORDER BY submitted_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ScheduleRecord
	for rows.Next() {
		var rec ScheduleRecord
		var submittedAt string
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Frequency, &rec.StatusCode, &submittedAt); err != nil {
			return nil, err
		}
		if rec.SubmittedAt, err = parseTime("submitted_at", submittedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
