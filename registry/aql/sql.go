package aql

import (
	"fmt"
	"strconv"
	"strings"
)

// SQLQuery is a query rendered for the item index.
type SQLQuery struct {
	Text   string
	Args   []interface{}
	Fields []Field
}

type renderer struct {
	sb   strings.Builder
	args []interface{}
}

func (r *renderer) bind(v interface{}) string {
	r.args = append(r.args, v)
	return "$" + strconv.Itoa(len(r.args))
}

func (r *renderer) variable(v Variable) string {
	if v.Literal {
		return r.bind(v.Value)
	}
	return column(v.Field, v.Table)
}

func column(f Field, t SqlTable) string {
	return t.Alias() + "." + fields[f].column
}

// resultColumn returns the column a result field is read from.
func (q *Query) resultColumn(f Field) string {
	def := fields[f]
	switch def.table {
	case TableNodeProps:
		return column(f, q.resultTable)
	default:
		return column(f, SqlTable{Kind: def.table})
	}
}

// usesStats reports whether the stats table must be joined.
func (q *Query) usesStats() bool {
	for _, f := range q.ResultFields {
		if fields[f].table == TableStats {
			return true
		}
	}
	for _, e := range q.Elements {
		if c, ok := e.(*Criteria); ok && c.Left.Table.Kind == TableStats {
			return true
		}
	}
	return false
}

// usedTables returns the property table instances read by the query.
func (q *Query) usedTables() []SqlTable {
	used := make(map[SqlTable]bool)
	for _, e := range q.Elements {
		if c, ok := e.(*Criteria); ok && c.Left.Table.Kind == TableNodeProps {
			used[c.Left.Table] = true
		}
	}

	var tables []SqlTable
	for _, t := range q.tables {
		if used[t] && t != q.resultTable {
			tables = append(tables, t)
		}
	}
	return tables
}

// SQL renders the query.
func (q *Query) SQL() (SQLQuery, error) {
	r := &renderer{}

	r.sb.WriteString("SELECT DISTINCT ")
	for i, f := range q.ResultFields {
		if i > 0 {
			r.sb.WriteString(", ")
		}
		r.sb.WriteString(q.resultColumn(f))
	}
	r.sb.WriteString(" FROM nodes n")

	if q.Domain == DomainProperties {
		fmt.Fprintf(&r.sb, " JOIN node_props %[1]s ON %[1]s.node_id = n.node_id", q.resultTable.Alias())
	}
	for _, t := range q.usedTables() {
		fmt.Fprintf(&r.sb, " LEFT JOIN node_props %[1]s ON %[1]s.node_id = n.node_id", t.Alias())
	}
	if q.usesStats() {
		r.sb.WriteString(" LEFT JOIN stats s ON s.node_id = n.node_id")
	}

	if len(q.Elements) > 0 {
		r.sb.WriteString(" WHERE ")
		for _, e := range q.Elements {
			if err := r.element(e); err != nil {
				return SQLQuery{}, err
			}
		}
	}

	if q.Sort != nil && len(q.Sort.Fields) > 0 {
		dir := "ASC"
		if q.Sort.Direction == Descending {
			dir = "DESC"
		}
		r.sb.WriteString(" ORDER BY ")
		for i, f := range q.Sort.Fields {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			r.sb.WriteString(q.resultColumn(f) + " " + dir)
		}
	}
	if q.Limit > 0 {
		r.sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		r.sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}

	return SQLQuery{Text: r.sb.String(), Args: r.args, Fields: q.ResultFields}, nil
}

func (r *renderer) element(e Element) error {
	switch v := e.(type) {
	case *Criteria:
		r.criteria(v)
	case Operator:
		switch v.Kind {
		case And:
			r.sb.WriteString(" AND ")
		case Or:
			r.sb.WriteString(" OR ")
		default:
			return invalidf("operator %d cannot be rendered", v.Kind)
		}
	case Parenthesis:
		if v.Open {
			r.sb.WriteString("(")
		} else {
			r.sb.WriteString(")")
		}
	default:
		return invalidf("unknown element %T", e)
	}
	return nil
}

func (r *renderer) criteria(c *Criteria) {
	op := comparatorOps[c.Comparator]

	if !c.Property {
		fmt.Fprintf(&r.sb, "%s %s %s", r.variable(c.Left), op, r.variable(c.Right))
		return
	}

	key := r.variable(c.KeyLeft)
	value := r.variable(c.Left)
	if !c.Comparator.negative() {
		fmt.Fprintf(&r.sb, "(%s = %s AND %s %s %s)", key, r.variable(c.KeyRight), value, op, r.variable(c.Right))
		return
	}

	// either half may differ on a property row, or the item has no property
	// row at all
	absent := c.Left.Table.Alias() + ".node_id IS NULL"
	fmt.Fprintf(&r.sb, "((%s != %s OR %s %s %s OR %s) AND (%s IS NOT NULL AND %s IS NOT NULL OR %s))",
		key, r.variable(c.KeyRight), value, op, r.variable(c.Right), absent, key, value, absent)
}
