// Package mysql implements store.Driver on go-sql-driver/mysql.
package mysql

import (
	"database/sql"

	// Import the mysql driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

type DB struct {
	db *sql.DB
}

// New connects to the mysql database described by dsn.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping mysql database")
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
