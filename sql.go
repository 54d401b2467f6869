package dbcore

import (
	"database/sql"
	"fmt"

	// database/sql driver registrations for the non-pgx shapes.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// sqlDriverNames maps registered dbcore drivers onto database/sql driver
// registration names.
var sqlDriverNames = map[string]string{
	DriverPq:    "postgres",
	DriverMySQL: "mysql",
}

// OpenSQL opens a database/sql handle for drivers that are not pgx-native.
// The handle's pool knobs are set from Config: max open, max idle, recycle
// interval, and idle refresh.
//
// database/sql connects lazily, so OpenSQL performs no network I/O; ping
// the returned handle to verify reachability.
func OpenSQL(args *Args, cfg Config) (*sql.DB, error) {
	if args == nil {
		return nil, newError(KindNotConfigured, "dbcore: no driver arguments (database not configured)", nil)
	}
	if args.Driver == DriverPgx {
		return nil, newError(KindConfig, "dbcore: driver pgx is pool-managed; use NewHandle", nil)
	}

	name, ok := sqlDriverNames[args.Driver]
	if !ok {
		return nil, newError(KindConfig,
			fmt.Sprintf("dbcore: driver %q has no database/sql registration", args.Driver), nil)
	}

	db, err := sql.Open(name, args.DSN)
	if err != nil {
		return nil, newError(KindConfig, "dbcore: driver rejected connection arguments", err)
	}

	cfg = cfg.withDefaults()
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return db, nil
}
