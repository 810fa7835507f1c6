package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Server is a saved Jellyfin server and the account used on it.
type Server struct {
	ID          int64
	URL         string
	Name        string
	Username    string
	UserID      string
	AccessToken string
	LastLogin   time.Time
}

// UpsertServer saves a server and account pair, refreshing the token and
// identity on conflict, and fills in the row ID.
func (db *DB) UpsertServer(server *Server) (int64, error) {
	_, err := db.Exec(`
		INSERT INTO servers (url, name, username, user_id, access_token, last_login, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(url, username) DO UPDATE SET
			name = excluded.name,
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			last_login = excluded.last_login,
			updated_at = CURRENT_TIMESTAMP
	`, server.URL, server.Name, server.Username, server.UserID, server.AccessToken, server.LastLogin)
	if err != nil {
		return 0, fmt.Errorf("failed to save server: %w", err)
	}

	var id int64
	err = db.QueryRow("SELECT id FROM servers WHERE url = ? AND username = ?", server.URL, server.Username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read server id: %w", err)
	}
	server.ID = id
	return id, nil
}

// GetServer fetches one saved server by row ID, or nil when missing.
func (db *DB) GetServer(id int64) (*Server, error) {
	server := &Server{}
	var lastLogin sql.NullTime
	err := db.QueryRow(`
		SELECT id, url, name, username, user_id, access_token, last_login
		FROM servers WHERE id = ?
	`, id).Scan(&server.ID, &server.URL, &server.Name, &server.Username, &server.UserID, &server.AccessToken, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	if lastLogin.Valid {
		server.LastLogin = lastLogin.Time
	}
	return server, nil
}

// GetActiveServer returns the server selected by the server.active setting,
// or nil when none is selected.
func (db *DB) GetActiveServer() (*Server, error) {
	raw, err := db.GetSetting("server.active")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid server.active value %q", raw)
	}
	return db.GetServer(id)
}

// SetActiveServer marks the server the gateway signs in to.
func (db *DB) SetActiveServer(id int64) error {
	return db.SetSetting("server.active", strconv.FormatInt(id, 10))
}

// UpdateServerToken stores a fresh access token and login time.
func (db *DB) UpdateServerToken(id int64, token string, loginAt time.Time) error {
	_, err := db.Exec(`
		UPDATE servers SET access_token = ?, last_login = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, token, loginAt, id)
	if err != nil {
		return fmt.Errorf("failed to update server token: %w", err)
	}
	return nil
}

// ClearServerToken drops the stored token, keeping the account row.
func (db *DB) ClearServerToken(id int64) error {
	_, err := db.Exec(`
		UPDATE servers SET access_token = '', last_login = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear server token: %w", err)
	}
	return nil
}

// ListServers returns all saved servers, newest first.
func (db *DB) ListServers() ([]Server, error) {
	rows, err := db.Query(`
		SELECT id, url, name, username, user_id, access_token, last_login
		FROM servers ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []Server
	for rows.Next() {
		var server Server
		var lastLogin sql.NullTime
		if err := rows.Scan(&server.ID, &server.URL, &server.Name, &server.Username, &server.UserID, &server.AccessToken, &lastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		if lastLogin.Valid {
			server.LastLogin = lastLogin.Time
		}
		servers = append(servers, server)
	}

	return servers, rows.Err()
}

// DeleteServer removes a saved server and its cached libraries.
func (db *DB) DeleteServer(id int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM libraries WHERE server_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete server libraries: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM servers WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete server: %w", err)
		}
		return nil
	})
}
