package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/trafficcloak/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "trafficcloak.db"

// DefaultListLimit is used by ListReports when limit is not positive.
const DefaultListLimit = 50

var (
	// ErrReportNotFound is returned by GetReport for an unknown ID.
	ErrReportNotFound = errors.New("session report not found")

	// ErrDatabaseNotFound is returned by Open when the database does not
	// exist and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("database not found")
)

// SessionDB stores finished session reports in SQLite. Traversal state
// is never stored; only the outcome of a session is.
type SessionDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures SessionDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and the database file.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that the status API can
	// read while a loop writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ReadOnlyOptions opens an existing database without creating it.
func ReadOnlyOptions() Options {
	return Options{EnableWAL: true}
}

// Open opens or creates the session database in dbDir.
func Open(dbDir string, opts Options) (*SessionDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; concurrent steps share one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &SessionDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sdb, nil
}

// Path returns the database file path.
func (s *SessionDB) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SessionDB) Close() error {
	return s.db.Close()
}

func (s *SessionDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		terminal_state TEXT NOT NULL,
		reason TEXT NOT NULL,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		last_location TEXT,
		failure TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		trail_digest TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_kind ON sessions(kind);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// TrailDigest returns the hex SHA3-256 digest of a visited trail. Two
// sessions with the same digest walked exactly the same pages.
func TrailDigest(trail []string) string {
	sum := sha3.Sum256([]byte(strings.Join(trail, "\n")))
	return hex.EncodeToString(sum[:])
}

// SaveReport stores a finished report. Saving the same ID twice replaces
// the earlier row.
func (s *SessionDB) SaveReport(ctx context.Context, r *model.Report) error {
	reportJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO sessions (id, kind, terminal_state, reason, pages_visited, last_location,
		failure, started_at, finished_at, trail_digest, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		terminal_state = excluded.terminal_state,
		reason = excluded.reason,
		pages_visited = excluded.pages_visited,
		last_location = excluded.last_location,
		failure = excluded.failure,
		finished_at = excluded.finished_at,
		trail_digest = excluded.trail_digest,
		report_json = excluded.report_json
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		string(r.Kind),
		string(r.TerminalState),
		string(r.Reason),
		r.PagesVisited,
		r.LastLocation,
		r.FailureReason,
		formatTimestamp(r.StartedAt),
		formatTimestamp(r.FinishedAt),
		TrailDigest(r.Trail),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save session report: %w", err)
	}
	return nil
}

// ListReports returns the most recent reports, newest first. An empty
// kind lists every kind.
func (s *SessionDB) ListReports(ctx context.Context, kind model.Kind, limit int) ([]*model.Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
	SELECT report_json FROM sessions
	WHERE (? = '' OR kind = ?)
	ORDER BY started_at DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*model.Report, 0)
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan session report: %w", err)
		}
		var r model.Report
		if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
			continue // Skip malformed rows
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// GetReport returns the report with the given ID.
func (s *SessionDB) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM sessions WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session report: %w", err)
	}

	var r model.Report
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, fmt.Errorf("failed to parse session report: %w", err)
	}
	return &r, nil
}

// StateCount is the number of sessions of one kind that ended in one state.
type StateCount struct {
	Kind          model.Kind          `json:"kind"`
	TerminalState model.TerminalState `json:"terminal_state"`
	Count         int                 `json:"count"`
	PagesVisited  int                 `json:"pages_visited"`
	LastStartedAt time.Time           `json:"last_started_at"`
}

// CountByState aggregates the history per kind and terminal state.
func (s *SessionDB) CountByState(ctx context.Context) ([]StateCount, error) {
	query := `
	SELECT kind, terminal_state, COUNT(*), COALESCE(SUM(pages_visited), 0), MAX(started_at)
	FROM sessions
	GROUP BY kind, terminal_state
	ORDER BY kind, terminal_state
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make([]StateCount, 0)
	for rows.Next() {
		var (
			c         StateCount
			kind      string
			state     string
			lastStart string
		)
		if err := rows.Scan(&kind, &state, &c.Count, &c.PagesVisited, &lastStart); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		c.Kind = model.Kind(kind)
		c.TerminalState = model.TerminalState(state)
		c.LastStartedAt = parseTimestamp(lastStart)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeleteBefore removes reports that started before t and returns how many
// rows were deleted.
func (s *SessionDB) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, formatTimestamp(t))
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// storedTimestamp sorts lexically in chronological order.
const storedTimestamp = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestamp)
}

// timestampFormats contains the formats accepted when reading timestamps.
var timestampFormats = []string{
	storedTimestamp,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
