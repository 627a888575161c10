package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads and validates a policy file.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	seen := make(map[string]domain.MaskType)
	seenIn := make(map[string]string)

	// Sorted so conflict messages name tables deterministically.
	keys := make([]string, 0, len(pol.Tables))
	for key := range pol.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "" {
			return fmt.Errorf("tables contains an empty key")
		}
		if !strings.Contains(key, ".") {
			return fmt.Errorf("tables[%q]: key must be schema.table", key)
		}
		for col, cc := range pol.Tables[key].Columns {
			if col == "" {
				return fmt.Errorf("tables[%q].columns contains an empty key", key)
			}
			if !cc.Mask.Valid() {
				return fmt.Errorf("tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, col, cc.Mask)
			}
			if cc.Mask == "" {
				continue
			}
			if prev, ok := seen[col]; ok && prev != cc.Mask {
				return fmt.Errorf("conflicting masks for column %q: %s in %s, %s in %s", col, prev, seenIn[col], cc.Mask, key)
			}
			seen[col] = cc.Mask
			seenIn[col] = key
		}
	}

	for i, q := range pol.SampleQuestions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("sample_questions[%d] is empty", i)
		}
	}
	return nil
}
