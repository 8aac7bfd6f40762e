// Package registry persists the users that have talked to the bot.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shortsbot/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// SQLStore implements domain.UserRegistry on database/sql (SQLite or MySQL).
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database described by driver/dsn and runs migrations.
func Open(driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	driver, dsn, err := ResolveDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		return NewSQLiteStore(dsn, logger)
	}

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return newStore(db, DriverMySQL, logger)
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLStore, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(DriverSQLite, dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newStore(db, DriverSQLite, logger)
}

func newStore(db *sql.DB, driver string, logger *slog.Logger) (*SQLStore, error) {
	store := &SQLStore{db: db, driver: driver, logger: logger}
	if err := RunMigrations(db, driver, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

// Driver returns the database/sql driver name in use.
func (s *SQLStore) Driver() string { return s.driver }

// DB exposes the underlying handle (used by the migrate command).
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var (
		u                  domain.User
		username, lastName sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT userid, username, firstName, lastName, firstSeen FROM users WHERE userid = ?`, id,
	).Scan(&u.ID, &username, &u.FirstName, &lastName, &u.FirstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, registryError("get user", err)
	}
	u.Username = username.String
	u.LastName = lastName.String
	return &u, nil
}

// CreateUser inserts u unless the id already exists. firstSeen is
// assigned by the database.
func (s *SQLStore) CreateUser(ctx context.Context, u domain.User) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.insertIgnore()+` INTO users (userid, username, firstName, lastName) VALUES (?, ?, ?, ?)`,
		u.ID, nullString(u.Username), u.FirstName, nullString(u.LastName),
	)
	if err != nil {
		return false, registryError("create user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, registryError("create user", err)
	}
	return n > 0, nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, registryError("count users", err)
	}
	return n, nil
}

// EachUser calls fn for every user in first-seen order, stopping at the
// first error.
func (s *SQLStore) EachUser(ctx context.Context, fn func(domain.User) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT userid, username, firstName, lastName, firstSeen FROM users ORDER BY firstSeen, userid`)
	if err != nil {
		return registryError("list users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u                  domain.User
			username, lastName sql.NullString
		)
		if err := rows.Scan(&u.ID, &username, &u.FirstName, &lastName, &u.FirstSeen); err != nil {
			return registryError("list users", err)
		}
		u.Username = username.String
		u.LastName = lastName.String
		if err := fn(u); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return registryError("list users", err)
	}
	return nil
}

// Backup writes a consistent copy of a SQLite registry to path.
func (s *SQLStore) Backup(ctx context.Context, path string) error {
	if s.driver != DriverSQLite {
		return fmt.Errorf("backup is only supported for sqlite (driver: %s)", s.driver)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create backup directory: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return registryError("backup", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) insertIgnore() string {
	if s.driver == DriverMySQL {
		return "INSERT IGNORE"
	}
	return "INSERT OR IGNORE"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func registryError(op string, err error) error {
	return &domain.Error{Kind: domain.KindRegistry, Op: op, Err: err}
}
