package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migrate brings the schema up to the latest version. Each migration
// runs in one transaction and is recorded, so reruns are no-ops.
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	// Bookkeeping table for applied versions
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(func(tx *sql.Tx) error {
				// One Exec per statement so a failure names the statement
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements cuts a migration script into statements at the
// semicolons, dropping blank lines and SQL comments.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.Split(sql, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// A trailing statement without a semicolon still counts
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Global settings
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Known Jellyfin servers and the account used on each
			CREATE TABLE servers (
				id INTEGER PRIMARY KEY,
				url TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				username TEXT NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL DEFAULT '',
				last_login TIMESTAMP,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(url, username)
			);

			-- Encrypted sign-in credentials, keyed by server and account
			CREATE TABLE credentials (
				lookup_key TEXT PRIMARY KEY,
				ciphertext TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Cached library views per server
			CREATE TABLE libraries (
				id INTEGER PRIMARY KEY,
				server_id INTEGER NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
				view_id TEXT NOT NULL,
				name TEXT NOT NULL,
				collection_type TEXT NOT NULL DEFAULT '',
				item_count INTEGER NOT NULL DEFAULT 0,
				refreshed_at TIMESTAMP NOT NULL,
				UNIQUE(server_id, view_id)
			);

			-- Indexes for common queries
			CREATE INDEX idx_servers_url ON servers(url);
			CREATE INDEX idx_libraries_server ON libraries(server_id);
		`,
	},
}
