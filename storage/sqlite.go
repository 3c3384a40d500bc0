package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/metrics"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	backendSQLite = "sqlite"
	memoryPath    = ":memory:"
	maxPathLength = 512
)

// SQLiteStore keeps token records in a SQLite table.
// All access goes through one connection, which serialises writers the
// way WAL mode requires and keeps ":memory:" databases alive.
type SQLiteStore struct {
	DB     *sql.DB
	Path   string
	logger *zap.SugaredLogger
}

// configureSQLiteConnection sets up WAL mode and the busy timeout
func configureSQLiteConnection(db *sql.DB, logger *zap.SugaredLogger, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to prevent immediate SQLITE_BUSY errors
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory" instead of "wal"
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != memoryPath && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s, expected: wal)", journalMode)
	}
	logger.Infof("SQLite token store: journal mode verified: %s", journalMode)

	return nil
}

// NewSQLiteStore opens (and creates if needed) the token database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := configureSQLiteConnection(db, logger, dbPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure connection: %w", err)
	}

	store := &SQLiteStore{DB: db, Path: dbPath, logger: logger}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("SQLite token store initialized at %s", dbPath)
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS csrf_tokens (
		session_id TEXT NOT NULL,
		access_key TEXT NOT NULL,
		token_name TEXT NOT NULL,
		token_value TEXT NOT NULL,
		issued_at INTEGER NOT NULL, -- Unix seconds
		PRIMARY KEY (session_id, access_key, token_name)
	);
	CREATE INDEX IF NOT EXISTS idx_csrf_tokens_issued_at ON csrf_tokens(issued_at);
	`
	_, err := s.DB.Exec(schema)
	return err
}

// WithTransaction executes fn within a transaction, rolling back on error or panic
func (s *SQLiteStore) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
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
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Put inserts or replaces rec
func (s *SQLiteStore) Put(ctx context.Context, sessionID string, rec core.TokenRecord) error {
	if !validKey(sessionID, rec.AccessKey, rec.TokenName) {
		return ErrInvalidKey
	}

	query := `
		INSERT OR REPLACE INTO csrf_tokens (session_id, access_key, token_name, token_value, issued_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.DB.ExecContext(ctx, query, sessionID, rec.AccessKey, rec.TokenName, rec.TokenValue, rec.IssuedAt); err != nil {
		metrics.StoreErrors.WithLabelValues(backendSQLite, "put").Inc()
		return fmt.Errorf("failed to insert token record: %w", err)
	}
	return nil
}

// Get returns the record at the key or core.ErrTokenNotFound
func (s *SQLiteStore) Get(ctx context.Context, sessionID, accessKey, tokenName string) (*core.TokenRecord, error) {
	rec, err := getRecord(ctx, s.DB, sessionID, accessKey, tokenName)
	if err != nil && !errors.Is(err, core.ErrTokenNotFound) {
		metrics.StoreErrors.WithLabelValues(backendSQLite, "get").Inc()
	}
	return rec, err
}

// queryRower is satisfied by both *sql.DB and *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryRower, sessionID, accessKey, tokenName string) (*core.TokenRecord, error) {
	query := `
		SELECT token_value, issued_at FROM csrf_tokens
		WHERE session_id = ? AND access_key = ? AND token_name = ?
	`
	rec := core.TokenRecord{AccessKey: accessKey, TokenName: tokenName}
	err := q.QueryRowContext(ctx, query, sessionID, accessKey, tokenName).Scan(&rec.TokenValue, &rec.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}
	return &rec, nil
}

// Delete removes the record at the key if present
func (s *SQLiteStore) Delete(ctx context.Context, sessionID, accessKey, tokenName string) error {
	query := `DELETE FROM csrf_tokens WHERE session_id = ? AND access_key = ? AND token_name = ?`
	if _, err := s.DB.ExecContext(ctx, query, sessionID, accessKey, tokenName); err != nil {
		metrics.StoreErrors.WithLabelValues(backendSQLite, "delete").Inc()
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// Consume reads and deletes the record in one transaction when accept
// approves it. The delete is conditioned on the value read, so a record
// rewritten in between is left alone.
func (s *SQLiteStore) Consume(ctx context.Context, sessionID, accessKey, tokenName string, accept func(core.TokenRecord) bool) (bool, error) {
	consumed := false

	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		rec, err := getRecord(ctx, tx, sessionID, accessKey, tokenName)
		if errors.Is(err, core.ErrTokenNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !accept(*rec) {
			return nil
		}

		query := `
			DELETE FROM csrf_tokens
			WHERE session_id = ? AND access_key = ? AND token_name = ? AND token_value = ?
		`
		result, err := tx.ExecContext(ctx, query, sessionID, accessKey, tokenName, rec.TokenValue)
		if err != nil {
			return fmt.Errorf("failed to delete token record: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		consumed = rows == 1
		return nil
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendSQLite, "consume").Inc()
		return false, err
	}
	return consumed, nil
}

// Sweep deletes records issued before olderThan
func (s *SQLiteStore) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM csrf_tokens WHERE issued_at < ?`, olderThan.Unix())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(backendSQLite, "sweep").Inc()
		return 0, fmt.Errorf("failed to sweep token records: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if removed > 0 {
		metrics.StoreSwept.WithLabelValues(backendSQLite).Add(float64(removed))
		s.logger.Infof("Swept %d expired token records", removed)
	}
	return removed, nil
}

// Count returns the number of stored records
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM csrf_tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count token records: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

// validateDatabasePath rejects traversal sequences and malformed paths
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == memoryPath {
		return nil
	}
	if len(dbPath) > maxPathLength {
		return fmt.Errorf("database path exceeds maximum length of %d characters", maxPathLength)
	}
	if strings.Contains(dbPath, "\x00") {
		return fmt.Errorf("null bytes not allowed in path")
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
	}
	return nil
}
