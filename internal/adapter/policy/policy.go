package policy

import (
	"fmt"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy is the operator's YAML file: business descriptions the agent sees
// in table info, column masks, and the sample questions offered in chat.
//
//	tables:
//	  public.users:
//	    description: "Registered users"
//	    columns:
//	      signup_source: "Marketing channel"   # plain description
//	      email:
//	        description: "Login address"
//	        mask: partial
//	sample_questions:
//	  - "How many users signed up last month?"
type Policy struct {
	Tables          map[string]TableContext `yaml:"tables"`
	SampleQuestions []string                `yaml:"sample_questions"`
}

// TableContext is keyed by "schema.table" in Policy.Tables.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML also accepts a bare string as the column description.
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	type plain ColumnContext
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(p)
	return nil
}

// Masks flattens the policy into a column-name to mask map. Masks are
// matched by column name alone, so the loader rejects conflicting entries.
func (p *Policy) Masks() map[string]domain.MaskType {
	if p == nil {
		return nil
	}
	masks := make(map[string]domain.MaskType)
	for _, tc := range p.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				masks[col] = cc.Mask
			}
		}
	}
	return masks
}
