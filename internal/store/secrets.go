package store

import (
	"context"
	"database/sql"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// StoreSecret upserts an encrypted secret blob, satisfying
// secrets.SecretStore so an AESVault can persist API keys alongside
// session state in the same libSQL database.
func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeVault, "store secret %s: %s", key, err.Error()).WithCause(err)
	}
	return nil
}

// GetSecret retrieves an encrypted secret blob by key.
func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %s not found", key)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "get secret %s: %s", key, err.Error()).WithCause(err)
	}
	return value, nil
}

// DeleteSecret removes a secret by key.
func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key); err != nil {
		return schema.NewErrorf(schema.ErrCodeVault, "delete secret %s: %s", key, err.Error()).WithCause(err)
	}
	return nil
}

// ListSecrets returns all stored secret keys.
func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "list secrets: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault, "scan secret key: %s", err.Error()).WithCause(err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
