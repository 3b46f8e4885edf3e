package outbox

import (
	"gorm.io/gorm/clause"
)

// forUpdateSkipLocked keeps concurrent publishers from double-claiming rows.
// SQLite (used in tests) ignores locking clauses, which is harmless there.
func forUpdateSkipLocked() clause.Expression {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}
