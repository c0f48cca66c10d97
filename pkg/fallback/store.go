package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"palisade-hq/bulwark/pkg/providers"
)

// Store persists fallback entries in a local SQLite file.
//
// The database runs in WAL mode with a single writer connection, which is
// all SQLite supports anyway. Results are stored as JSON; expiry is a unix
// timestamp column so pruning is one indexed DELETE.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex
	closeOnce sync.Once

	saveStmt  *sql.Stmt
	loadStmt  *sql.Stmt
	pruneStmt *sql.Stmt
}

// Row is one persisted fallback entry.
type Row struct {
	Fingerprint string
	Result      *providers.ChatResult
	ExpiresAt   time.Time
}

// NewStore opens (creating if needed) the fallback database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fallback schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare fallback statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fallback_results (
		fingerprint TEXT PRIMARY KEY,
		result TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fallback_expires ON fallback_results(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO fallback_results (fingerprint, result, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			result = excluded.result,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT fingerprint, result, expires_at
		FROM fallback_results
		WHERE expires_at > ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`
		DELETE FROM fallback_results
		WHERE expires_at <= ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// Save upserts one entry.
func (s *Store) Save(ctx context.Context, fingerprint string, result *providers.ChatResult, expiresAt time.Time) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		fingerprint,
		string(payload),
		expiresAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fallback entry: %w", err)
	}
	return nil
}

// LoadAll returns every non-expired entry, for warm-loading at startup.
func (s *Store) LoadAll(ctx context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadStmt.QueryContext(ctx, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback entries: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			fingerprint string
			payload     string
			expiresAt   int64
		)
		if err := rows.Scan(&fingerprint, &payload, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan fallback row: %w", err)
		}

		result := &providers.ChatResult{}
		if err := json.Unmarshal([]byte(payload), result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fallback entry %q: %w", fingerprint, err)
		}

		out = append(out, Row{
			Fingerprint: fingerprint,
			Result:      result,
			ExpiresAt:   time.Unix(expiresAt, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fallback rows: %w", err)
	}
	return out, nil
}

// Prune deletes rows that expired at or before now, returning the count.
func (s *Store) Prune(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pruneStmt.ExecContext(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune fallback entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *Store) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.saveStmt != nil {
			s.saveStmt.Close()
		}
		if s.loadStmt != nil {
			s.loadStmt.Close()
		}
		if s.pruneStmt != nil {
			s.pruneStmt.Close()
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}
