package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithLockForUpdate takes a row-level exclusive lock for the enclosing
// transaction. Callers use it on the invoice row to serialize concurrent
// line mutations. SQLite has no FOR UPDATE syntax; its writer lock already
// serializes transactions, so the clause is skipped there.
func WithLockForUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if db.Dialector.Name() == "sqlite" {
			return db
		}
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}
