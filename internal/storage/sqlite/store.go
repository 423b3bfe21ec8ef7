package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/yousuf/scopemap-mcp/internal/storage/sqlite/migrations"
)

// PendingBreakpoint is a breakpoint remembered by source URL
type PendingBreakpoint struct {
	URL       string
	Line      int
	Column    int
	Condition string
	Disabled  bool
	UpdatedAt time.Time
}

// Store is a SQLite-backed pending breakpoint store
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at dbPath and applies migrations
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_pending_breakpoints.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// Save stores or updates a pending breakpoint.
func (s *Store) Save(ctx context.Context, pb PendingBreakpoint) error {
	if pb.URL == "" {
		return errors.New("pending breakpoint url is required")
	}
	if pb.UpdatedAt.IsZero() {
		pb.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_breakpoints (url, line, "column", condition, disabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url, line, "column") DO UPDATE SET
			condition = excluded.condition,
			disabled = excluded.disabled,
			updated_at = excluded.updated_at
	`, pb.URL, pb.Line, pb.Column, pb.Condition, boolToInt(pb.Disabled), pb.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving pending breakpoint: %w", err)
	}
	return nil
}

// ListByURL returns the pending breakpoints of a source URL ordered by
// position.
func (s *Store) ListByURL(ctx context.Context, url string) ([]PendingBreakpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, line, "column", condition, disabled, updated_at
		FROM pending_breakpoints
		WHERE url = ?
		ORDER BY line, "column"
	`, url)
	if err != nil {
		return nil, fmt.Errorf("querying pending breakpoints: %w", err)
	}
	defer rows.Close()

	var result []PendingBreakpoint
	for rows.Next() {
		var (
			pb        PendingBreakpoint
			disabled  int
			updatedAt string
		)
		if err := rows.Scan(&pb.URL, &pb.Line, &pb.Column, &pb.Condition, &disabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending breakpoint: %w", err)
		}
		pb.Disabled = disabled != 0
		pb.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		result = append(result, pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending breakpoints: %w", err)
	}

	return result, nil
}

// Delete removes a pending breakpoint. Deleting a missing record is not an
// error.
func (s *Store) Delete(ctx context.Context, url string, line, column int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_breakpoints WHERE url = ? AND line = ? AND "column" = ?`,
		url, line, column)
	if err != nil {
		return fmt.Errorf("deleting pending breakpoint: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
