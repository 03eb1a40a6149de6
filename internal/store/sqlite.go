package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend handles the key-value model on a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a new SQLite backend.
// If dbPath is empty, defaults to "./data/agentrooms.db"
func NewSQLiteBackend(ctx context.Context, dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		dbPath = "./data/agentrooms.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY and keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteBackend{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteBackend) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS list_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_list_items_key ON list_items(key, id);

	CREATE TABLE IF NOT EXISTS set_members (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (key, member)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteBackend) SetNX(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteBackend) Del(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, key := range keys {
		for _, stmt := range []string{
			`DELETE FROM kv WHERE key = ?`,
			`DELETE FROM list_items WHERE key = ?`,
			`DELETE FROM set_members WHERE key = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, key); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Incr(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT)
		RETURNING value
	`, key).Scan(&value)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *SQLiteBackend) RPush(ctx context.Context, key string, values ...string) error {
	for _, v := range values {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO list_items (key, value) VALUES (?, ?)`, key, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM list_items WHERE key = ? ORDER BY id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	from, to, ok := rangeBounds(len(values), start, stop)
	if !ok {
		return []string{}, nil
	}
	return values[from:to], nil
}

func (s *SQLiteBackend) SAdd(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO set_members (key, member) VALUES (?, ?)`, key, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteBackend) SRem(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM set_members WHERE key = ? AND member = ?`, key, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member FROM set_members WHERE key = ? ORDER BY member`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
