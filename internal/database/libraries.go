package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Library is a cached library view from a Jellyfin server.
type Library struct {
	ID             int64
	ServerID       int64
	ViewID         string
	Name           string
	CollectionType string
	ItemCount      int
	RefreshedAt    time.Time
}

// ReplaceLibraries swaps the cached views for a server in one transaction.
func (db *DB) ReplaceLibraries(serverID int64, libraries []Library) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM libraries WHERE server_id = ?", serverID); err != nil {
			return fmt.Errorf("failed to clear libraries: %w", err)
		}

		for _, lib := range libraries {
			if _, err := tx.Exec(`
				INSERT INTO libraries (server_id, view_id, name, collection_type, item_count, refreshed_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, serverID, lib.ViewID, lib.Name, lib.CollectionType, lib.ItemCount, lib.RefreshedAt); err != nil {
				return fmt.Errorf("failed to insert library %s: %w", lib.Name, err)
			}
		}

		return nil
	})
}

// ListLibraries returns the cached views for a server.
func (db *DB) ListLibraries(serverID int64) ([]Library, error) {
	rows, err := db.Query(`
		SELECT id, server_id, view_id, name, collection_type, item_count, refreshed_at
		FROM libraries WHERE server_id = ? ORDER BY name
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var libraries []Library
	for rows.Next() {
		var lib Library
		if err := rows.Scan(&lib.ID, &lib.ServerID, &lib.ViewID, &lib.Name, &lib.CollectionType, &lib.ItemCount, &lib.RefreshedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libraries = append(libraries, lib)
	}

	return libraries, rows.Err()
}
