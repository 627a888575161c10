package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmptyQuery        = errors.New("empty query")
	ErrMutatingStatement = errors.New("mutating statements are not allowed")
	ErrNotAllowed        = errors.New("only read-only statements are allowed")
	ErrMultiStatement    = errors.New("multiple statements are not allowed")
	ErrParseFailed       = errors.New("failed to parse SQL")
)

// RejectionReason is the machine-readable class of a guard rejection.
type RejectionReason string

const (
	ReasonEmptyQuery     RejectionReason = "empty_query"
	ReasonMutating       RejectionReason = "mutating_statement"
	ReasonNotAllowed     RejectionReason = "not_allowed"
	ReasonMultiStatement RejectionReason = "multiple_statements"
	ReasonParseFailed    RejectionReason = "parse_failed"
)

func (r RejectionReason) sentinel() error {
	switch r {
	case ReasonEmptyQuery:
		return ErrEmptyQuery
	case ReasonMutating:
		return ErrMutatingStatement
	case ReasonMultiStatement:
		return ErrMultiStatement
	case ReasonParseFailed:
		return ErrParseFailed
	default:
		return ErrNotAllowed
	}
}

// RejectionError is returned by every guard when a statement must not run.
// errors.Is matches the sentinel for its Reason.
type RejectionError struct {
	Reason  RejectionReason
	Keyword string // offending keyword, upper case; may be empty
	Cause   error  // underlying parser error, if any
}

func reject(reason RejectionReason, keyword string) *RejectionError {
	return &RejectionError{Reason: reason, Keyword: keyword}
}

// Tag renders the rejection as "reason:KEYWORD", e.g. "mutating_statement:DROP".
func (e *RejectionError) Tag() string {
	if e.Keyword == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ":" + e.Keyword
}

func (e *RejectionError) Error() string {
	msg := e.Reason.sentinel().Error()
	if e.Keyword != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Keyword)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RejectionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Reason.sentinel(), e.Cause}
	}
	return []error{e.Reason.sentinel()}
}

// AsRejection returns the RejectionError in err's chain, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

var (
	DefaultAllowedKeywords = []string{"SELECT", "WITH", "EXPLAIN", "SHOW"}
	DefaultDeniedKeywords  = []string{"UPDATE", "DELETE", "INSERT", "ALTER", "DROP", "TRUNCATE", "CREATE"}
)

// KeywordGuard classifies SQL by its leading keyword and a whole-text scan
// for mutating verbs. It is a heuristic: verbs inside string literals are
// false positives, and it never parses the statement.
type KeywordGuard struct {
	allowed map[string]struct{}
	denied  map[string]struct{}
	// deniedOrder keeps ScanText results deterministic for equal inputs.
	deniedOrder []string
}

// NewKeywordGuard builds a guard. Nil or empty lists fall back to the defaults.
func NewKeywordGuard(allowed, denied []string) *KeywordGuard {
	if len(allowed) == 0 {
		allowed = DefaultAllowedKeywords
	}
	if len(denied) == 0 {
		denied = DefaultDeniedKeywords
	}
	g := &KeywordGuard{
		allowed: make(map[string]struct{}, len(allowed)),
		denied:  make(map[string]struct{}, len(denied)),
	}
	for _, kw := range allowed {
		g.allowed[strings.ToUpper(strings.TrimSpace(kw))] = struct{}{}
	}
	for _, kw := range denied {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if _, dup := g.denied[kw]; dup || kw == "" {
			continue
		}
		g.denied[kw] = struct{}{}
		g.deniedOrder = append(g.deniedOrder, kw)
	}
	return g
}

// Check returns nil only when the leading keyword is allow-listed and no
// deny-listed verb appears anywhere as a standalone token.
func (g *KeywordGuard) Check(statement string) error {
	normalized := strings.ToUpper(strings.TrimSpace(statement))
	if normalized == "" {
		return reject(ReasonEmptyQuery, "")
	}

	lead := leadingKeyword(normalized)
	if _, bad := g.denied[lead]; bad {
		return reject(ReasonMutating, lead)
	}
	if _, ok := g.allowed[lead]; !ok {
		return reject(ReasonNotAllowed, lead)
	}

	if kw := g.firstDenied(normalized); kw != "" {
		return reject(ReasonMutating, kw)
	}
	return nil
}

// ScanText applies only the deny-list scan. Used on natural-language input,
// where there is no leading SQL keyword to check.
func (g *KeywordGuard) ScanText(text string) error {
	if kw := g.firstDenied(strings.ToUpper(text)); kw != "" {
		return reject(ReasonMutating, kw)
	}
	return nil
}

func (g *KeywordGuard) firstDenied(normalized string) string {
	for _, word := range words(normalized) {
		if _, bad := g.denied[word]; bad {
			return word
		}
	}
	return ""
}

// leadingKeyword returns the run of letters at the start of s.
func leadingKeyword(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// words splits s into identifier-like tokens, so "UPDATED_AT" stays one word.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$')
	})
}

// ChainGuard runs guards in order and returns the first rejection.
type ChainGuard struct {
	guards []interface{ Check(string) error }
}

func NewChainGuard(guards ...interface{ Check(string) error }) *ChainGuard {
	return &ChainGuard{guards: guards}
}

func (c *ChainGuard) Check(statement string) error {
	for _, g := range c.guards {
		if err := g.Check(statement); err != nil {
			return err
		}
	}
	return nil
}
