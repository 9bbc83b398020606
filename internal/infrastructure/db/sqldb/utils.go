package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	maxRetries = 5
	retryDelay = 100 * time.Millisecond
)

// execTx runs txBody in a transaction, retrying the whole body when the db reports
// a lock or serialization conflict.
func execTx(ctx context.Context, db *sqlx.DB, txBody func(*sqlx.Tx) error) error {
	var lastErr error
	for range maxRetries {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := txBody(tx); err != nil {
			//nolint:all
			tx.Rollback()

			if isConflictError(err) {
				lastErr = err
				time.Sleep(retryDelay)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isConflictError(err) {
				lastErr = err
				time.Sleep(retryDelay)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	return lastErr
}

func isConflictError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "database is locked") ||
		strings.Contains(errMsg, "database table is locked") ||
		strings.Contains(errMsg, "could not serialize access") ||
		strings.Contains(errMsg, "deadlock detected") ||
		strings.Contains(errMsg, "busy")
}

// Amounts are uint64 while both sqlite and postgres only have signed 64 bit
// integers: the bits are stored as they are and cast back on read.
func toDbAmount(v uint64) int64 {
	return int64(v)
}

func fromDbAmount(v int64) uint64 {
	return uint64(v)
}
