// Package sqlite implements store.Driver on modernc.org/sqlite, the default
// zero-dependency backend.
package sqlite

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the pure-Go sqlite driver.
	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

// New opens (or creates) the sqlite database at dsn.
func New(dsn string) (*DB, error) {
	// Foreign keys are off by default in sqlite; the message table relies on
	// ON DELETE CASCADE. The DSN pragma applies to every pooled connection.
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %q", dsn)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
