package policy

import "github.com/guillermoBallester/pgchat/internal/core/port"

// MergeTableDetail fills empty table and column comments from tables.
// A COMMENT ON set in the database always wins over the YAML.
func MergeTableDetail(detail *port.TableDetail, tables map[string]TableContext) {
	if detail == nil {
		return
	}

	tc, ok := tables[detail.Schema+"."+detail.Name]
	if !ok {
		return
	}

	if detail.Comment == "" {
		detail.Comment = tc.Description
	}
	for i := range detail.Columns {
		col := &detail.Columns[i]
		if cc, ok := tc.Columns[col.Name]; ok && col.Comment == "" {
			col.Comment = cc.Description
		}
	}
}

// MergeTableInfoList applies the same rule to a table listing.
func MergeTableInfoList(list []port.TableInfo, tables map[string]TableContext) {
	for i, t := range list {
		if tc, ok := tables[t.Schema+"."+t.Name]; ok && t.Comment == "" {
			list[i].Comment = tc.Description
		}
	}
}
