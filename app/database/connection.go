package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection pool shared by all repositories.
type DB struct {
	*sql.DB
}

var connectionPragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=foreign_keys(1)",
	"_txlock=immediate",
}

// NewConnection opens the SQLite database at path. A "file:" prefix is
// accepted. The vector distance function is registered before the first
// connection is opened.
func NewConnection(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := registerVectorFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register vector functions: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

func buildDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + strings.Join(connectionPragmas, "&")
}
