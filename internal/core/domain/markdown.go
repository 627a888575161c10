package domain

import "strings"

// NormalizeTables guarantees a blank line immediately before and after every
// block of pipe-table lines so markdown renderers pick the tables up. No other
// content changes; applying it twice equals applying it once.
func NormalizeTables(text string) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+4)
	inTable := false

	for _, line := range lines {
		table := isTableLine(line)
		switch {
		case table && !inTable:
			if n := len(out); n > 0 && !isBlank(out[n-1]) {
				out = append(out, "")
			}
			inTable = true
		case !table && inTable:
			if !isBlank(line) {
				out = append(out, "")
			}
			inTable = false
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// isTableLine reports whether line starts with "|" (leading whitespace is
// not trimmed) and has another "|" after it.
func isTableLine(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Contains(line[1:], "|")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
