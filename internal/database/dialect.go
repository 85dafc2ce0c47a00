package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedDatabase is returned for a database type no dialect handles
var ErrUnsupportedDatabase = errors.New("unsupported database type")

// Dialect hides the differences between the document store backends
type Dialect interface {
	// DriverName returns the driver name for sql.Open
	DriverName() string

	// DSN returns the data source name for the connection
	DSN(config DialectConfig) string

	// RewriteQuery converts ? placeholders to the driver's syntax
	RewriteQuery(query string) string

	// ConfigureConnection applies pool and pragma settings after the first ping
	ConfigureConnection(db *sql.DB) error

	// MigrationsSubdir names the directory under migrations/ holding this backend's files
	MigrationsSubdir() string

	// CreateMigrationsTableQuery returns the SQL to create the migrations tracking table
	CreateMigrationsTableQuery() string

	// UpsertDocumentQuery returns the statement that writes one document row.
	// Parameters are positional and bound in this order:
	//
	//	1. doc_key  (string, the primary key)
	//	2. payload  (string, the JSON-encoded collection)
	//
	// An existing row with the same doc_key has its payload replaced and its
	// updated_at refreshed. The statement uses ? placeholders and must go
	// through RewriteQuery before execution.
	UpsertDocumentQuery() string
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// For SQLite
	Path string

	// For PostgreSQL/MySQL
	URL string
}

// ParseDialect returns the dialect for a configured database type. An empty
// type selects SQLite.
func ParseDialect(dbType string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql":
		return NewPostgresDialect(), nil
	case "mysql":
		return NewMySQLDialect(), nil
	case "sqlite", "sqlite3", "":
		return NewSQLiteDialect(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, dbType)
}

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
// A ? inside a single-quoted literal is left alone.
func rewritePlaceholdersToNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	counter := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			counter++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(counter))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
