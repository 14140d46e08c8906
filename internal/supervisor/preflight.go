package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/JonMunkholm/erpserver/internal/config"
)

var (
	// ErrRunningAsRoot is returned when the process runs as the OS superuser.
	ErrRunningAsRoot = errors.New("running as user 'root' is a security risk, aborting")

	// ErrForbiddenDBUser is returned when the database superuser is configured
	// as the application user.
	ErrForbiddenDBUser = errors.New("using the database user 'postgres' is a security risk, aborting")

	// ErrNoDatabase is returned by translation modes without a database.
	ErrNoDatabase = errors.New("translation requires a database name")

	// ErrAmbiguousDatabase is returned by translation modes given several databases.
	ErrAmbiguousDatabase = errors.New("translation requires exactly one database name")
)

const (
	rootUser     = "root"
	forbiddenDBU = "postgres"
)

// UserLookup returns the name of the OS user running the process.
type UserLookup func() (string, error)

// CurrentUsername looks up the effective OS user. Without a passwd entry
// uid 0 is still reported as root.
func CurrentUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		if os.Geteuid() == 0 {
			return rootUser, nil
		}
		return "", err
	}
	return u.Username, nil
}

// Preflight refuses configurations that must never start: running as root
// and connecting as the database superuser. It never touches the database.
// An OS user that cannot be determined is not an error.
func Preflight(cfg *config.Config, lookup UserLookup) error {
	if lookup == nil {
		lookup = CurrentUsername
	}
	if name, err := lookup(); err == nil && name == rootUser {
		return ErrRunningAsRoot
	}
	if cfg.Database.EffectiveUser() == forbiddenDBU {
		return ErrForbiddenDBUser
	}
	return nil
}

// translationDatabase returns the single database a translation mode runs on.
func translationDatabase(cfg *config.Config) (string, error) {
	switch len(cfg.Database.Names) {
	case 0:
		return "", ErrNoDatabase
	case 1:
		return cfg.Database.Names[0], nil
	default:
		return "", fmt.Errorf("%w: got %d", ErrAmbiguousDatabase, len(cfg.Database.Names))
	}
}
