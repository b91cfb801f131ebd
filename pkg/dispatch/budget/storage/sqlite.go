package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence. It is
// suitable for single-instance deployments where the day's committed spend
// must survive a restart.
//
// The database runs in write-ahead log (WAL) mode with a single writer
// connection, matching SQLite's concurrency model.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string

	saveStmt    *sql.Stmt
	loadStmt    *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:      dbPath,
		BusyTimeout: 5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS day_usage (
		tenant TEXT NOT NULL,
		day TEXT NOT NULL,
		committed_cost REAL NOT NULL,
		calls_per_tier TEXT NOT NULL,
		documents TEXT NOT NULL,
		last_updated INTEGER NOT NULL,
		PRIMARY KEY (tenant, day)
	);

	CREATE INDEX IF NOT EXISTS idx_day_usage_last_updated ON day_usage(last_updated);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO day_usage (tenant, day, committed_cost, calls_per_tier, documents, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, day) DO UPDATE SET
			committed_cost = excluded.committed_cost,
			calls_per_tier = excluded.calls_per_tier,
			documents = excluded.documents,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT committed_cost, calls_per_tier, documents, last_updated
		FROM day_usage
		WHERE tenant = ? AND day = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM day_usage
		WHERE last_updated < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Save persists the usage for a tenant-day, replacing any existing row.
func (s *SQLiteBackend) Save(ctx context.Context, usage *DayUsage) error {
	calls, err := json.Marshal(usage.CallsPerTier)
	if err != nil {
		return fmt.Errorf("failed to encode calls per tier: %w", err)
	}
	docs, err := json.Marshal(usage.Documents)
	if err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}

	_, err = s.saveStmt.ExecContext(ctx,
		usage.Tenant,
		usage.Day,
		usage.CommittedCost,
		string(calls),
		string(docs),
		usage.LastUpdated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save usage for %s/%s: %w", usage.Tenant, usage.Day, err)
	}
	return nil
}

// Load retrieves the usage for a tenant-day, or nil if no row exists.
func (s *SQLiteBackend) Load(ctx context.Context, tenant, day string) (*DayUsage, error) {
	var (
		committedCost float64
		callsJSON     string
		docsJSON      string
		lastUpdated   int64
	)

	err := s.loadStmt.QueryRowContext(ctx, tenant, day).Scan(
		&committedCost, &callsJSON, &docsJSON, &lastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for %s/%s: %w", tenant, day, err)
	}

	usage := &DayUsage{
		Tenant:        tenant,
		Day:           day,
		CommittedCost: committedCost,
		LastUpdated:   time.Unix(lastUpdated, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(callsJSON), &usage.CallsPerTier); err != nil {
		return nil, fmt.Errorf("failed to decode calls per tier: %w", err)
	}
	if err := json.Unmarshal([]byte(docsJSON), &usage.Documents); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	return usage, nil
}

// Cleanup deletes rows last updated before the cutoff.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteBackend) Close() error {
	for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.cleanupStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
