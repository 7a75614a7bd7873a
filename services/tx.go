package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const txMaxAttempts = 3

// runInTx runs fn inside a transaction and retries it with a fresh snapshot
// when Postgres reports a serialization failure or deadlock. Every
// multi-document duel mutation goes through here so a conflicting concurrent
// write is never partially applied.
func runInTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		log.Printf("[TX] Retryable conflict (attempt %d/%d): %v", attempt, txMaxAttempts, err)
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", txMaxAttempts, err)
}

// isRetryableTxError matches serialization_failure (40001) and
// deadlock_detected (40P01).
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// forUpdate adds SELECT ... FOR UPDATE on stores that support row locks.
// The sqlite test store serializes writers on its own, so the clause is
// skipped there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
