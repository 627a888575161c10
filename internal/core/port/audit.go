package port

import "context"

// AuditEntry represents a single auditable query event.
type AuditEntry struct {
	Tool         string
	SQL          string
	RowsReturned int
	DurationMS   int64
	Err          error
	// Rejected is the guard tag ("mutating_statement:DROP") when the
	// statement never reached the database.
	Rejected string
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
