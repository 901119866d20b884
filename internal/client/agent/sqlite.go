package agent

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const refreshKey = "refresh_token"

// SQLiteSecretStore persists the refresh secret in a local SQLite file.
type SQLiteSecretStore struct {
	db *sql.DB
}

func OpenSQLiteSecretStore(ctx context.Context, dsn string) (*SQLiteSecretStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSecretStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate credentials store: %w", err)
	}
	return nil
}

func (s *SQLiteSecretStore) Load(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, refreshKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load refresh secret: %w", err)
	}
	return v, nil
}

func (s *SQLiteSecretStore) Save(ctx context.Context, secret string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, refreshKey, secret, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save refresh secret: %w", err)
	}
	return nil
}

func (s *SQLiteSecretStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, refreshKey); err != nil {
		return fmt.Errorf("clear refresh secret: %w", err)
	}
	return nil
}

func (s *SQLiteSecretStore) Close() error { return s.db.Close() }
