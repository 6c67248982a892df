package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"thermbridge/internal/storage"
	"thermbridge/internal/token"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema. Both tables are singletons; the
// CHECK keeps a buggy caller from ever writing a second row.
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS netatmo_tokens (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS webhook_credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			webhook_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetToken retrieves the stored vendor token.
// Implements token.Storage; returns nil when nothing is stored yet.
func (s *SQLiteStorage) GetToken(ctx context.Context) (*token.Token, error) {
	var tok token.Token

	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at
		FROM netatmo_tokens WHERE id = 1
	`).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil // No token stored yet
	}
	if err != nil {
		return nil, err
	}

	return &tok, nil
}

// SaveToken saves or updates the vendor token.
// Implements token.Storage.
func (s *SQLiteStorage) SaveToken(ctx context.Context, tok *token.Token) error {
	now := time.Now()

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM netatmo_tokens WHERE id = 1)").Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		_, err = s.db.ExecContext(ctx, `
			UPDATE netatmo_tokens
			SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
			WHERE id = 1
		`, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, now)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO netatmo_tokens (id, access_token, refresh_token, expires_at, created_at, updated_at)
			VALUES (1, ?, ?, ?, ?, ?)
		`, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, now, now)
	}

	return err
}

// GetWebhookCredential retrieves the stored webhook identity, or nil when
// none has been generated yet.
func (s *SQLiteStorage) GetWebhookCredential(ctx context.Context) (*storage.WebhookCredential, error) {
	var cred storage.WebhookCredential

	err := s.db.QueryRowContext(ctx, `
		SELECT webhook_id, created_at, updated_at
		FROM webhook_credentials WHERE id = 1
	`).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &cred, nil
}

// SaveWebhookCredential saves or updates the webhook identity.
func (s *SQLiteStorage) SaveWebhookCredential(ctx context.Context, cred *storage.WebhookCredential) error {
	now := time.Now()
	cred.UpdatedAt = now

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM webhook_credentials WHERE id = 1)").Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		_, err = s.db.ExecContext(ctx, `
			UPDATE webhook_credentials
			SET webhook_id = ?, updated_at = ?
			WHERE id = 1
		`, cred.ID, cred.UpdatedAt)
	} else {
		cred.CreatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO webhook_credentials (id, webhook_id, created_at, updated_at)
			VALUES (1, ?, ?, ?)
		`, cred.ID, cred.CreatedAt, cred.UpdatedAt)
	}

	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
