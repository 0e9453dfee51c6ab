// Package postgres implements store.Driver on lib/pq.
package postgres

import (
	"database/sql"

	// Import the postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

type DB struct {
	db *sql.DB
}

// New connects to the postgres database described by dsn.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping postgres database")
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
