package domain

// Result is a bounded, column-ordered query result.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Len returns the number of rows, nil-safe.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
