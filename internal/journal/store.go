package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/gridpilot/internal/models"
)

// Store persists the journal log in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// StoreStats summarizes a store's contents.
type StoreStats struct {
	LogEntries int
	Signatures int
	Successful int
	Runs       int
	LastWrite  time.Time
}

// NewStore opens (creating if needed) the database at dbPath and applies
// pending migrations. ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Append writes log entries in one transaction, preserving their order.
func (s *Store) Append(ctx context.Context, entries []models.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO journal_entries (signature, target, page_fingerprint, point_x, point_y, kind, success, recorded_at, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		recorded := e.RecordedAt
		if recorded.IsZero() {
			recorded = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			e.Signature, e.Target, e.PageFingerprint, e.Point.X, e.Point.Y,
			string(e.Kind), e.Success, recorded.UTC(), e.RunID,
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.Signature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadLog returns every stored entry in insertion order.
func (s *Store) LoadLog(ctx context.Context) ([]models.JournalEntry, error) {
	return s.query(ctx, `
SELECT signature, target, page_fingerprint, point_x, point_y, kind, success, recorded_at, run_id
FROM journal_entries ORDER BY id ASC`)
}

// LoadCurrent returns the latest entry per signature, successful ones only.
func (s *Store) LoadCurrent(ctx context.Context) ([]models.JournalEntry, error) {
	return s.query(ctx, `
SELECT e.signature, e.target, e.page_fingerprint, e.point_x, e.point_y, e.kind, e.success, e.recorded_at, e.run_id
FROM journal_entries e
JOIN (SELECT signature, MAX(id) AS id FROM journal_entries GROUP BY signature) latest ON latest.id = e.id
WHERE e.success = 1
ORDER BY e.signature ASC`)
}

func (s *Store) query(ctx context.Context, q string) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var kind string
		var runID sql.NullString
		if err := rows.Scan(&e.Signature, &e.Target, &e.PageFingerprint, &e.Point.X, &e.Point.Y,
			&kind, &e.Success, &e.RecordedAt, &runID); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = models.ActionKind(kind)
		e.RunID = runID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Compact rewrites the log to hold only the current successful entries.
func (s *Store) Compact(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM journal_entries
WHERE id NOT IN (SELECT MAX(id) FROM journal_entries GROUP BY signature)
   OR success = 0`)
	if err != nil {
		return 0, fmt.Errorf("compact journal: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every stored entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries`); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

// Stats summarizes the store.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT signature), COUNT(DISTINCT NULLIF(run_id, ''))
FROM journal_entries`).Scan(&st.LogEntries, &st.Signatures, &st.Runs)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}

	current, err := s.LoadCurrent(ctx)
	if err != nil {
		return st, err
	}
	st.Successful = len(current)

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(recorded_at) FROM journal_entries`).Scan(&last); err != nil {
		return st, fmt.Errorf("query last write: %w", err)
	}
	if last.Valid {
		for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
			if t, err := time.Parse(layout, last.String); err == nil {
				st.LastWrite = t
				break
			}
		}
	}
	return st, nil
}

// Load replays the stored log into j.
func (s *Store) Load(ctx context.Context, j *Journal) (int, error) {
	entries, err := s.LoadLog(ctx)
	if err != nil {
		return 0, err
	}
	j.Apply(entries)
	return len(entries), nil
}
