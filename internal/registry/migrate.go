package registry

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

// migration represents a single schema migration step. Statements are
// separated by semicolons and run one by one, so MySQL does not need
// multiStatements.
type migration struct {
	Version     int
	Description string
	SQLite      string
	MySQL       string
}

func (m migration) sqlFor(driver string) string {
	if driver == DriverMySQL {
		return m.MySQL
	}
	return m.SQLite
}

// migrations is the ordered list of schema migrations.
// Each migration is applied exactly once, tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "users table",
		SQLite: `
		CREATE TABLE IF NOT EXISTS users (
			userid     INTEGER PRIMARY KEY,
			username   TEXT,
			firstName  TEXT NOT NULL DEFAULT '',
			lastName   TEXT,
			firstSeen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		MySQL: `
		CREATE TABLE IF NOT EXISTS users (
			userid     BIGINT NOT NULL PRIMARY KEY,
			username   VARCHAR(64) NULL,
			firstName  VARCHAR(255) NOT NULL DEFAULT '',
			lastName   VARCHAR(255) NULL,
			firstSeen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	{
		Version:     2,
		Description: "index users by first seen",
		SQLite:      `CREATE INDEX IF NOT EXISTS idx_users_first_seen ON users(firstSeen)`,
		MySQL:       `CREATE INDEX idx_users_first_seen ON users(firstSeen)`,
	},
}

// RunMigrations applies all pending schema migrations.
// It uses a schema_version table to track which migrations have been applied.
func RunMigrations(db *sql.DB, driver string, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER NOT NULL PRIMARY KEY,
			description VARCHAR(255),
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion, err := currentSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration",
			"version", m.Version,
			"description", m.Description,
			"driver", driver,
		)

		if err := applyMigration(db, driver, m, logger); err != nil {
			return err
		}

		logger.Info("migration applied", "version", m.Version)
	}

	return nil
}

// applyMigration runs each statement of m, ignoring "duplicate" and
// "already exists" errors so a half-applied migration can be retried.
func applyMigration(db *sql.DB, driver string, m migration, logger *slog.Logger) error {
	for _, stmt := range splitSQL(m.sqlFor(driver)) {
		if _, err := db.Exec(stmt); err != nil {
			errStr := strings.ToLower(err.Error())
			if strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "already exists") {
				logger.Debug("migration statement skipped (already applied)", "stmt_prefix", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}

	if _, err := db.Exec(
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

// splitSQL splits a multi-statement SQL string on semicolons.
func splitSQL(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func currentSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// GetSchemaVersion returns the current schema version, 0 when no
// migration has run yet.
func GetSchemaVersion(db *sql.DB) (int, error) {
	version, err := currentSchemaVersion(db)
	if err != nil {
		// schema_version missing => nothing applied
		return 0, nil
	}
	return version, nil
}
