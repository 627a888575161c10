package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// qualifiedName drops the schema for tables in public.
func qualifiedName(schema, name string) string {
	if schema == "" || schema == "public" {
		return name
	}
	return schema + "." + name
}

// splitQualified is the inverse of qualifiedName; schema is empty when absent.
func splitQualified(name string) (schema, table string) {
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// RenderTableDetail writes a table as a CREATE TABLE block followed by
// its sample rows, the shape language models read schemas best in.
func RenderTableDetail(d *port.TableDetail) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualifiedName(d.Schema, d.Name))
	defs := make([]string, 0, len(d.Columns)+len(d.ForeignKeys)+1)
	var pk []string
	for _, c := range d.Columns {
		def := "\t" + c.Name + " " + c.DataType
		if !c.IsNullable {
			def += " NOT NULL"
		}
		if c.DefaultValue != "" {
			def += " DEFAULT " + c.DefaultValue
		}
		if c.Comment != "" {
			def += " -- " + c.Comment
		}
		defs = append(defs, def)
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "\tPRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	for _, fk := range d.ForeignKeys {
		defs = append(defs, fmt.Sprintf("\tFOREIGN KEY (%s) REFERENCES %s (%s)", fk.ColumnName, fk.ReferencedTable, fk.ReferencedColumn))
	}
	b.WriteString(joinColumnDefs(defs))
	b.WriteString("\n)")

	if d.Comment != "" {
		fmt.Fprintf(&b, "\nCOMMENT ON TABLE %s IS '%s'", qualifiedName(d.Schema, d.Name), strings.ReplaceAll(d.Comment, "'", "''"))
	}

	if d.SampleRows != nil {
		fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n", len(d.SampleRows.Rows), d.Name)
		b.WriteString(strings.Join(d.SampleRows.Columns, "\t"))
		for _, row := range d.SampleRows.Rows {
			b.WriteByte('\n')
			b.WriteString(joinValues(row, "\t"))
		}
		b.WriteString("\n*/")
	}
	return b.String()
}

// joinColumnDefs puts the comma before any trailing "-- comment".
func joinColumnDefs(defs []string) string {
	out := make([]string, len(defs))
	for i, def := range defs {
		if i == len(defs)-1 {
			out[i] = def
			continue
		}
		if j := strings.Index(def, " -- "); j >= 0 {
			out[i] = def[:j] + "," + def[j:]
		} else {
			out[i] = def + ","
		}
	}
	return strings.Join(out, "\n")
}

// FormatResult renders rows as a pipe table for tool observations.
func FormatResult(res *domain.Result) string {
	if res == nil || len(res.Columns) == 0 {
		return "Query returned no columns."
	}
	if len(res.Rows) == 0 {
		return "Query returned no rows. Columns: " + strings.Join(res.Columns, ", ")
	}

	var b strings.Builder
	writePipeRow(&b, res.Columns)
	b.WriteString("|" + strings.Repeat(" --- |", len(res.Columns)) + "\n")
	cells := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		cells = cells[:0]
		for _, v := range row {
			cells = append(cells, formatValue(v))
		}
		writePipeRow(&b, cells)
	}
	if res.Truncated {
		fmt.Fprintf(&b, "(showing the first %d rows; refine the query or aggregate for complete results)\n", len(res.Rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

// writePipeRow writes one table row, escaping pipes inside cells.
func writePipeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" " + strings.ReplaceAll(c, "|", `\|`) + " |")
	}
	b.WriteString("\n")
}

func joinValues(row []any, sep string) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, sep)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strings.ReplaceAll(x, "\n", " ")
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
