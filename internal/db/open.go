package db

import (
	"context"
	"fmt"
)

// Ledger drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the ledger named by driver. dsn is a database URL for
// postgres and a file path for sqlite.
func Open(ctx context.Context, driver, dsn string) (RunLedger, error) {
	switch driver {
	case DriverPostgres:
		return Connect(ctx, dsn)
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}
