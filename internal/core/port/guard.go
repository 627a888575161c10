package port

// StatementGuard decides whether a SQL statement may reach the database.
// A nil error means the statement is allowed; rejections are
// *domain.RejectionError.
type StatementGuard interface {
	Check(statement string) error
}
