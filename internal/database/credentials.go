package database

import (
	"database/sql"
	"fmt"
	"time"
)

// GetCredential returns the stored ciphertext for a lookup key, or empty
// when none is stored. Encryption lives with the caller; this layer only
// ever sees ciphertext.
func (db *DB) GetCredential(lookupKey string) (string, error) {
	var ciphertext string
	err := db.QueryRow("SELECT ciphertext FROM credentials WHERE lookup_key = ?", lookupKey).Scan(&ciphertext)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return ciphertext, nil
}

// PutCredential stores ciphertext under a lookup key.
func (db *DB) PutCredential(lookupKey, ciphertext string) error {
	_, err := db.Exec(`
		INSERT INTO credentials (lookup_key, ciphertext, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(lookup_key) DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at
	`, lookupKey, ciphertext, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// DeleteCredential removes one stored credential.
func (db *DB) DeleteCredential(lookupKey string) error {
	_, err := db.Exec("DELETE FROM credentials WHERE lookup_key = ?", lookupKey)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// DeleteAllCredentials removes every stored credential.
func (db *DB) DeleteAllCredentials() error {
	_, err := db.Exec("DELETE FROM credentials")
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
