// Package aql compiles structured item queries into SQL against the item
// index.
package aql

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned for queries which cannot be compiled.
var ErrInvalidQuery = errors.New("invalid query")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Domain is the kind of rows a query returns.
type Domain string

const (
	// DomainItems returns one row per item.
	DomainItems Domain = "items"
	// DomainProperties returns one row per item property.
	DomainProperties Domain = "properties"
)

// TableKind identifies a table of the item index.
type TableKind int

const (
	TableNodes TableKind = iota
	TableNodeProps
	TableStats
)

func (k TableKind) name() string {
	switch k {
	case TableNodes:
		return "nodes"
	case TableNodeProps:
		return "node_props"
	case TableStats:
		return "stats"
	default:
		return "unknown"
	}
}

// firstAliasID is the id of the first aliased table of a query.
const firstAliasID = 100

// SqlTable is a table instance referenced by a query. Property tables are
// joined once per alias id.
type SqlTable struct {
	Kind TableKind
	ID   int
}

// Alias returns the name the table instance is referenced by.
func (t SqlTable) Alias() string {
	switch t.Kind {
	case TableNodes:
		return "n"
	case TableStats:
		return "s"
	default:
		return fmt.Sprintf("np%d", t.ID)
	}
}

type valueType int

const (
	typeString valueType = iota
	typeInt
	typeTime
)

// Field is a queryable attribute.
type Field string

const (
	FieldRepo          Field = "repo"
	FieldPath          Field = "path"
	FieldName          Field = "name"
	FieldType          Field = "type"
	FieldDepth         Field = "depth"
	FieldSize          Field = "size"
	FieldCreated       Field = "created"
	FieldModified      Field = "modified"
	FieldUpdated       Field = "updated"
	FieldSHA256        Field = "sha256"
	FieldPropertyKey   Field = "property.key"
	FieldPropertyValue Field = "property.value"
	FieldDownloaded    Field = "stat.downloaded"
	FieldDownloads     Field = "stat.downloads"
)

type fieldDef struct {
	table  TableKind
	column string
	typ    valueType
}

// fields maps every field to its owning table.
var fields = map[Field]fieldDef{
	FieldRepo:          {TableNodes, "repo", typeString},
	FieldPath:          {TableNodes, "node_path", typeString},
	FieldName:          {TableNodes, "node_name", typeString},
	FieldType:          {TableNodes, "node_type", typeString},
	FieldDepth:         {TableNodes, "depth", typeInt},
	FieldSize:          {TableNodes, "size", typeInt},
	FieldCreated:       {TableNodes, "created", typeTime},
	FieldModified:      {TableNodes, "modified", typeTime},
	FieldUpdated:       {TableNodes, "updated", typeTime},
	FieldSHA256:        {TableNodes, "sha256", typeString},
	FieldPropertyKey:   {TableNodeProps, "prop_key", typeString},
	FieldPropertyValue: {TableNodeProps, "prop_value", typeString},
	FieldDownloaded:    {TableStats, "last_downloaded", typeTime},
	FieldDownloads:     {TableStats, "download_count", typeInt},
}

func lookupField(name string) (Field, fieldDef, error) {
	f := Field(name)
	def, ok := fields[f]
	if !ok {
		return "", fieldDef{}, invalidf("unknown field %q", name)
	}
	return f, def, nil
}

// defaultResultFields are returned when a query does not name any.
var defaultResultFields = map[Domain][]Field{
	DomainItems:      {FieldRepo, FieldPath, FieldName, FieldType, FieldSize, FieldCreated, FieldModified, FieldUpdated},
	DomainProperties: {FieldRepo, FieldPath, FieldName, FieldPropertyKey, FieldPropertyValue},
}

// Comparator relates a field to a value.
type Comparator string

const (
	Equals          Comparator = "$eq"
	NotEquals       Comparator = "$ne"
	Greater         Comparator = "$gt"
	GreaterOrEquals Comparator = "$gte"
	Less            Comparator = "$lt"
	LessOrEquals    Comparator = "$lte"
	Matches         Comparator = "$match"
	NotMatches      Comparator = "$nmatch"
)

var comparatorOps = map[Comparator]string{
	Equals:          "=",
	NotEquals:       "!=",
	Greater:         ">",
	GreaterOrEquals: ">=",
	Less:            "<",
	LessOrEquals:    "<=",
	Matches:         "LIKE",
	NotMatches:      "NOT LIKE",
}

func (c Comparator) valid() bool {
	_, ok := comparatorOps[c]
	return ok
}

// negative reports whether c holds when values differ.
func (c Comparator) negative() bool {
	return c == NotEquals || c == NotMatches
}

// Variable is one side of a criterion, either a column or a literal value.
type Variable struct {
	Field Field
	Table SqlTable
	// Value is set for literals.
	Value   interface{}
	Literal bool
}

func fieldVariable(f Field, t SqlTable) Variable {
	return Variable{Field: f, Table: t}
}

func valueVariable(v interface{}) Variable {
	return Variable{Value: v, Literal: true}
}

// Element is a token of the criteria expression.
type Element interface {
	element()
}

// Criteria compares two variables. Property criteria carry a second pair
// matching the property key on the same table instance.
type Criteria struct {
	Comparator Comparator
	Left       Variable
	Right      Variable
	// Property criteria only.
	Property bool
	KeyLeft  Variable
	KeyRight Variable
}

// Table returns the table instance the criterion reads.
func (c *Criteria) Table() SqlTable { return c.Left.Table }

// Operator combines criteria. Join operators never reach the element list,
// they scope the criteria built while pending.
type Operator struct {
	Kind    OperatorKind
	AliasID int
}

// OperatorKind enumerates operators.
type OperatorKind int

const (
	And OperatorKind = iota
	Or
	// FreezeJoin makes property criteria share one joined property row.
	FreezeJoin
)

func (k OperatorKind) boolean() bool { return k == And || k == Or }

// Parenthesis groups elements.
type Parenthesis struct {
	Open bool
}

func (*Criteria) element()   {}
func (Operator) element()    {}
func (Parenthesis) element() {}

// SortDirection orders results.
type SortDirection string

const (
	Ascending  SortDirection = "$asc"
	Descending SortDirection = "$desc"
)

// Sort orders the results of a query.
type Sort struct {
	Direction SortDirection
	Fields    []Field
}

// Query is a compiled item query.
type Query struct {
	Domain       Domain
	Elements     []Element
	ResultFields []Field
	Sort         *Sort
	Limit        int
	Offset       int

	// resultTable is the property table instance returned by properties
	// queries.
	resultTable SqlTable
	// tables lists the property table instances referenced, in allocation
	// order.
	tables []SqlTable
}
