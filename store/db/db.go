// Package db selects a concrete store driver from the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/uselocalchat/localchat/internal/profile"
	"github.com/uselocalchat/localchat/store"
	"github.com/uselocalchat/localchat/store/db/mysql"
	"github.com/uselocalchat/localchat/store/db/postgres"
	"github.com/uselocalchat/localchat/store/db/sqlite"
)

// NewDriver opens the store driver named by the profile.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	switch p.Driver {
	case "sqlite":
		return sqlite.New(p.DSN)
	case "postgres":
		return postgres.New(p.DSN)
	case "mysql":
		return mysql.New(p.DSN)
	default:
		return nil, errors.Errorf("unknown store driver %q", p.Driver)
	}
}
