// Package db dispatches to the concrete database driver selected by the
// profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/internal/profile"
	"github.com/flowchat-io/flowchat/store"
	"github.com/flowchat-io/flowchat/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q", profile.Driver)
	}
}
