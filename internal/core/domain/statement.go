package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// StatementKind is the closed set of statement classes the parser guard
// reasons about.
type StatementKind string

const (
	KindSelect StatementKind = "select"
	KindInsert StatementKind = "insert"
	KindUpdate StatementKind = "update"
	KindDelete StatementKind = "delete"
	KindDDL    StatementKind = "ddl"
	KindOther  StatementKind = "other"
)

// Statement is one parsed statement tagged with its kind and effective verb.
// For EXPLAIN the kind and verb are those of the explained statement.
type Statement struct {
	Kind StatementKind
	Verb string
}

// ClassifyStatement parses sql with PostgreSQL's own parser and tags every
// statement in it.
func ClassifyStatement(sql string) ([]Statement, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, &parseError{err: err}
	}
	if len(tree.Stmts) == 0 {
		return nil, ErrEmptyQuery
	}

	stmts := make([]Statement, 0, len(tree.Stmts))
	for _, raw := range tree.Stmts {
		stmts = append(stmts, classifyNode(raw.Stmt))
	}
	return stmts, nil
}

// parseError keeps the parser's message reachable without repeating the
// ErrParseFailed prefix when it is re-wrapped into a RejectionError.
type parseError struct {
	err error
}

func (e *parseError) Error() string { return fmt.Sprintf("%v: %v", ErrParseFailed, e.err) }

func (e *parseError) Unwrap() []error { return []error{ErrParseFailed, e.err} }

func classifyNode(n *pg_query.Node) Statement {
	if n == nil {
		return Statement{Kind: KindOther}
	}

	switch s := n.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return classifySelect(s.SelectStmt)
	case *pg_query.Node_InsertStmt:
		return Statement{Kind: KindInsert, Verb: "INSERT"}
	case *pg_query.Node_UpdateStmt:
		return Statement{Kind: KindUpdate, Verb: "UPDATE"}
	case *pg_query.Node_DeleteStmt:
		return Statement{Kind: KindDelete, Verb: "DELETE"}
	case *pg_query.Node_MergeStmt:
		return Statement{Kind: KindUpdate, Verb: "MERGE"}
	case *pg_query.Node_ExplainStmt:
		return classifyNode(s.ExplainStmt.Query)
	case *pg_query.Node_VariableShowStmt:
		return Statement{Kind: KindOther, Verb: "SHOW"}
	case *pg_query.Node_CreateStmt, *pg_query.Node_CreateTableAsStmt, *pg_query.Node_IndexStmt,
		*pg_query.Node_ViewStmt, *pg_query.Node_CreateSchemaStmt, *pg_query.Node_CreateFunctionStmt,
		*pg_query.Node_CreateSeqStmt, *pg_query.Node_CreatedbStmt:
		return Statement{Kind: KindDDL, Verb: "CREATE"}
	case *pg_query.Node_AlterTableStmt, *pg_query.Node_AlterSeqStmt, *pg_query.Node_RenameStmt:
		return Statement{Kind: KindDDL, Verb: "ALTER"}
	case *pg_query.Node_DropStmt, *pg_query.Node_DropdbStmt:
		return Statement{Kind: KindDDL, Verb: "DROP"}
	case *pg_query.Node_TruncateStmt:
		return Statement{Kind: KindDDL, Verb: "TRUNCATE"}
	default:
		return Statement{Kind: KindOther, Verb: otherVerb(n)}
	}
}

// classifySelect looks through WITH clauses and set operations: a
// data-modifying CTE makes the whole statement a write.
func classifySelect(s *pg_query.SelectStmt) Statement {
	if s == nil {
		return Statement{Kind: KindSelect, Verb: "SELECT"}
	}
	if s.IntoClause != nil {
		return Statement{Kind: KindDDL, Verb: "SELECT INTO"}
	}
	if s.WithClause != nil {
		for _, cte := range s.WithClause.Ctes {
			expr, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
			if !ok || expr.CommonTableExpr == nil {
				continue
			}
			if inner := classifyNode(expr.CommonTableExpr.Ctequery); inner.Kind != KindSelect {
				return inner
			}
		}
	}
	for _, arm := range []*pg_query.SelectStmt{s.Larg, s.Rarg} {
		if arm == nil {
			continue
		}
		if inner := classifySelect(arm); inner.Kind != KindSelect {
			return inner
		}
	}
	return Statement{Kind: KindSelect, Verb: "SELECT"}
}

// otherVerb derives a readable verb from the node type name, e.g.
// *pg_query.Node_GrantStmt -> "GRANT".
func otherVerb(n *pg_query.Node) string {
	name := fmt.Sprintf("%T", n.Node)
	name = strings.TrimPrefix(name, "*pg_query.Node_")
	name = strings.TrimSuffix(name, "Stmt")
	return strings.ToUpper(name)
}

// ParserGuard allows exactly one statement, and only if it reads: SELECT,
// EXPLAIN of a SELECT, or SHOW. Replaces keyword heuristics with a real parse.
type ParserGuard struct{}

func NewParserGuard() *ParserGuard {
	return &ParserGuard{}
}

func (g *ParserGuard) Check(statement string) error {
	stmts, err := ClassifyStatement(statement)
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) {
			return reject(ReasonEmptyQuery, "")
		}
		var pe *parseError
		if errors.As(err, &pe) {
			return &RejectionError{Reason: ReasonParseFailed, Cause: pe.err}
		}
		return &RejectionError{Reason: ReasonParseFailed, Cause: err}
	}
	if len(stmts) > 1 {
		for _, s := range stmts {
			if s.Kind != KindSelect && s.Kind != KindOther {
				return reject(ReasonMutating, s.Verb)
			}
		}
		return reject(ReasonMultiStatement, "")
	}

	s := stmts[0]
	switch {
	case s.Kind == KindSelect, s.Verb == "SHOW":
		return nil
	case s.Kind == KindOther:
		return reject(ReasonNotAllowed, s.Verb)
	default:
		return reject(ReasonMutating, s.Verb)
	}
}

// TrimStatement drops trailing semicolons and comments so sql can be
// embedded in a larger statement. Input the scanner rejects is only
// whitespace-trimmed; the parser will report it later.
func TrimStatement(sql string) string {
	trimmed := strings.TrimSpace(sql)
	scan, err := pg_query.Scan(trimmed)
	if err != nil {
		return strings.TrimRight(trimmed, "; \t\n")
	}

	end := 0
	for _, tok := range scan.GetTokens() {
		switch tok.GetToken() {
		case pg_query.Token_SQL_COMMENT, pg_query.Token_C_COMMENT, pg_query.Token_ASCII_59:
			continue
		}
		end = int(tok.GetEnd())
	}
	return strings.TrimSpace(trimmed[:end])
}
