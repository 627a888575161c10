package postgres

import (
	"fmt"
	"strings"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// collectResult reads at most maxRows rows; an extra available row sets
// Truncated. maxRows <= 0 reads everything.
func collectResult(rows pgx.Rows, maxRows int) (*domain.Result, error) {
	fields := rows.FieldDescriptions()
	res := &domain.Result{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, fd := range fields {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		for i, v := range vals {
			vals[i] = plainValue(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return res, nil
}

// plainValue turns pgx wire types into values that print and marshal
// naturally.
func plainValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		return numericString(x)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case []byte:
		return string(x)
	default:
		return v
	}
}

func numericString(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}

	digits := n.Int.String()
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if n.Exp >= 0 {
		return sign + digits + strings.Repeat("0", int(n.Exp))
	}
	scale := int(-n.Exp)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	return sign + digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
}
