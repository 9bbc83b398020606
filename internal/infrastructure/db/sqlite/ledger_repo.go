package sqlitedb

import (
	"database/sql"
	"fmt"

	"github.com/arkade-os/custodyd/internal/infrastructure/db/sqldb"
)

func NewLedgerRepository(config ...interface{}) (*sqldb.LedgerRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected 1 argument, got %d", len(config))
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open ledger repository: expected *sql.DB but got %T", config[0],
		)
	}

	return sqldb.NewLedgerRepository(db, driverName), nil
}
