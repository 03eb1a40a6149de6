package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS list_items (
	id    BIGSERIAL PRIMARY KEY,
	key   TEXT NOT NULL,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_list_items_key ON list_items(key, id);

CREATE TABLE IF NOT EXISTS set_members (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
`

// PostgresBackend maps the key-value model onto three PostgreSQL tables.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a PostgreSQL backend with a connection pool and
// makes sure the schema exists.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresBackend) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresBackend) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *PostgresBackend) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func (s *PostgresBackend) SetNX(ctx context.Context, key, value string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, stmt := range []string{
		`DELETE FROM kv WHERE key = ANY($1)`,
		`DELETE FROM list_items WHERE key = ANY($1)`,
		`DELETE FROM set_members WHERE key = ANY($1)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt, keys); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresBackend) Incr(ctx context.Context, key string) (int64, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, '1')
		ON CONFLICT (key) DO UPDATE SET value = ((kv.value)::BIGINT + 1)::TEXT
		RETURNING value
	`, key).Scan(&value)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

func (s *PostgresBackend) RPush(ctx context.Context, key string, values ...string) error {
	for _, v := range values {
		if _, err := s.pool.Exec(ctx, `INSERT INTO list_items (key, value) VALUES ($1, $2)`, key, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if start >= 0 && stop >= 0 {
		if start > stop {
			return []string{}, nil
		}
		rows, err = s.pool.Query(ctx, `
			SELECT value FROM list_items WHERE key = $1 ORDER BY id
			LIMIT $2 OFFSET $3
		`, key, stop-start+1, start)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT value FROM list_items WHERE key = $1 ORDER BY id`, key)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
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

	if start >= 0 && stop >= 0 {
		return values, nil
	}
	from, to, ok := rangeBounds(len(values), start, stop)
	if !ok {
		return []string{}, nil
	}
	return values[from:to], nil
}

func (s *PostgresBackend) SAdd(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO set_members (key, member) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, key, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresBackend) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM set_members WHERE key = $1 AND member = ANY($2)`, key, members)
	return err
}

func (s *PostgresBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT member FROM set_members WHERE key = $1 ORDER BY member`, key)
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
