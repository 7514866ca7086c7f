package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresBackend stores values in a two-column table. It is meant for kiosk deployments where
// several terminals share one branch database.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	table string
	owned bool

	getSQL    string
	setSQL    string
	deleteSQL string
}

// PostgresOpener returns an [Opener] that connects with dsn and ensures table exists.
func PostgresOpener(dsn, table string) Opener {
	return func(ctx context.Context) (Backend, error) {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		b, err := NewPostgresBackend(ctx, pool, table)
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.owned = true
		return b, nil
	}
}

// NewPostgresBackend creates table if needed and returns a backend over pool.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresBackend, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("postgres create table: %w", err)
	}

	return &PostgresBackend{
		pool:      pool,
		table:     table,
		getSQL:    `SELECT value FROM ` + table + ` WHERE key = $1`,
		setSQL:    `INSERT INTO ` + table + ` (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		deleteSQL: `DELETE FROM ` + table + ` WHERE key = $1`,
	}, nil
}

func (p *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.pool.QueryRow(ctx, p.getSQL, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (p *PostgresBackend) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, p.setSQL, key, value)
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, p.deleteSQL, key)
	return err
}

func (p *PostgresBackend) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
