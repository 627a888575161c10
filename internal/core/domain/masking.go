package domain

import (
	"crypto/sha256"
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// MaskType is a column masking strategy applied to query results before
// they reach the language model.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a known strategy. The zero value means no mask.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms value according to m. nil stays nil.
func ApplyMask(value any, m MaskType) any {
	if value == nil {
		return nil
	}

	switch m {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprint(value)))
		return fmt.Sprintf("%x", sum)
	case MaskPartial:
		return lastFour(fmt.Sprint(value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// lastFour keeps the final four runes and stars out the rest.
func lastFour(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	for i := 0; i < len(runes)-4; i++ {
		runes[i] = '*'
	}
	return string(runes)
}

// MaskResult masks columns of res in place. masks is keyed by column name.
func MaskResult(res *Result, masks map[string]MaskType) {
	if res == nil || len(masks) == 0 {
		return
	}
	for i, col := range res.Columns {
		m, ok := masks[col]
		if !ok {
			continue
		}
		for _, row := range res.Rows {
			if i < len(row) {
				row[i] = ApplyMask(row[i], m)
			}
		}
	}
}

// MasksForQuery extends masks with the output aliases sql gives to masked
// columns, so `SELECT email AS contact` stays masked. Only plain column
// references are followed; on parse failure masks is returned unchanged.
func MasksForQuery(sql string, masks map[string]MaskType) map[string]MaskType {
	if len(masks) == 0 {
		return masks
	}

	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return masks
	}
	sel, ok := tree.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return masks
	}

	out := make(map[string]MaskType, len(masks))
	for k, v := range masks {
		out[k] = v
	}
	for _, target := range sel.SelectStmt.TargetList {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget == nil || rt.ResTarget.Name == "" || rt.ResTarget.Val == nil {
			continue
		}
		col := columnRefName(rt.ResTarget.Val)
		if m, masked := masks[col]; masked && col != "" {
			out[rt.ResTarget.Name] = m
		}
	}
	return out
}

// columnRefName returns the bare column of a (possibly qualified) reference.
func columnRefName(n *pg_query.Node) string {
	cr, ok := n.Node.(*pg_query.Node_ColumnRef)
	if !ok || cr.ColumnRef == nil || len(cr.ColumnRef.Fields) == 0 {
		return ""
	}
	last := cr.ColumnRef.Fields[len(cr.ColumnRef.Fields)-1]
	str, ok := last.Node.(*pg_query.Node_String_)
	if !ok || str.String_ == nil {
		return ""
	}
	return str.String_.Sval
}
