package accounts

import (
	"database/sql"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB opens a bun database for the given driver. Supported drivers are
// sqlite and postgres.
func OpenDB(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite3", "":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite in-memory databases are per connection
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "pgx", "postgresql":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput)
	}
}
