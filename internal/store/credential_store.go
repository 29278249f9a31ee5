package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CredentialStore persists the single bearer token issued by the backend.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the stored token, or "" when none is stored.
func (s *CredentialStore) Get(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token FROM credentials WHERE id = 1
	`).Scan(&token)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// Set replaces the stored token.
func (s *CredentialStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, access_token, updated_at) VALUES (1, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET access_token = excluded.access_token, updated_at = excluded.updated_at
	`, token)
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (s *CredentialStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM credentials WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	return nil
}
