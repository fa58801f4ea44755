package aql

// Builder accumulates a query from a flat token stream. Operators are
// pushed onto a pending stack ahead of the criteria they combine and are
// written to the element list once the next criterion or group follows a
// criterion or a closed group. A group combining its members with an
// operator opens its parenthesis before pushing the operator and pops the
// operator before closing the parenthesis.
type Builder struct {
	domain    Domain
	elements  []Element
	pending   []Operator
	groups    []int
	nextAlias int

	resultTable SqlTable
	tables      []SqlTable

	resultFields []Field
	sort         *Sort
	limit        int
	offset       int
	err          error
}

// NewBuilder returns a builder of queries over domain.
func NewBuilder(domain Domain) *Builder {
	b := &Builder{domain: domain, nextAlias: firstAliasID}
	if domain == DomainProperties {
		b.resultTable = b.allocate()
	}
	return b
}

func (b *Builder) allocate() SqlTable {
	t := SqlTable{Kind: TableNodeProps, ID: b.nextAlias}
	b.nextAlias++
	b.tables = append(b.tables, t)
	return t
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// PushOperator makes op combine the criteria added until the matching
// PopOperator.
func (b *Builder) PushOperator(kind OperatorKind) {
	op := Operator{Kind: kind}
	if kind == FreezeJoin {
		op.AliasID = b.nextAlias
		b.nextAlias++
	}
	b.pending = append(b.pending, op)
}

// PopOperator ends the scope of the last pushed operator.
func (b *Builder) PopOperator() {
	if len(b.pending) == 0 {
		b.fail(invalidf("unbalanced operator"))
		return
	}
	b.pending = b.pending[:len(b.pending)-1]
}

// pendingBoolean returns the innermost pending boolean operator, skipping
// join operators. Criteria are and-ed by default.
func (b *Builder) pendingBoolean() Operator {
	for i := len(b.pending) - 1; i >= 0; i-- {
		if b.pending[i].Kind.boolean() {
			return Operator{Kind: b.pending[i].Kind}
		}
	}
	return Operator{Kind: And}
}

// pendingJoin returns the innermost pending join operator.
func (b *Builder) pendingJoin() (Operator, bool) {
	for i := len(b.pending) - 1; i >= 0; i-- {
		if b.pending[i].Kind == FreezeJoin {
			return b.pending[i], true
		}
	}
	return Operator{}, false
}

// addElement appends e, first writing the pending boolean operator when e
// follows a criterion or a closed group.
func (b *Builder) addElement(e Element) {
	if n := len(b.elements); n > 0 {
		switch last := b.elements[n-1].(type) {
		case *Criteria:
			b.elements = append(b.elements, b.pendingBoolean())
		case Parenthesis:
			if !last.Open {
				b.elements = append(b.elements, b.pendingBoolean())
			}
		}
	}
	b.elements = append(b.elements, e)
}

// OpenParen starts a group.
func (b *Builder) OpenParen() {
	b.groups = append(b.groups, len(b.elements))
	b.addElement(Parenthesis{Open: true})
}

// CloseParen ends the current group. Empty groups are dropped together with
// the operator written ahead of them.
func (b *Builder) CloseParen() {
	if len(b.groups) == 0 {
		b.fail(invalidf("unbalanced parenthesis"))
		return
	}
	start := b.groups[len(b.groups)-1]
	b.groups = b.groups[:len(b.groups)-1]

	if last, ok := b.elements[len(b.elements)-1].(Parenthesis); ok && last.Open {
		b.elements = b.elements[:start]
		return
	}
	b.elements = append(b.elements, Parenthesis{})
}

// resolveTableForSimpleCriteria returns the table instance read by a
// criterion on field. Property fields get a table instance of their own
// unless a join operator is pending, whose instance they share.
func (b *Builder) resolveTableForSimpleCriteria(def fieldDef) SqlTable {
	if def.table != TableNodeProps {
		return SqlTable{Kind: def.table}
	}
	if b.domain == DomainProperties {
		return b.resultTable
	}
	return b.resolveTableForPropertyCriteria()
}

// resolveTableForPropertyCriteria returns the table instance read by both
// the key and the value half of a property criterion.
func (b *Builder) resolveTableForPropertyCriteria() SqlTable {
	if join, ok := b.pendingJoin(); ok {
		t := SqlTable{Kind: TableNodeProps, ID: join.AliasID}
		for _, known := range b.tables {
			if known == t {
				return t
			}
		}
		b.tables = append(b.tables, t)
		return t
	}
	return b.allocate()
}

func (b *Builder) createSimpleCriteria(field string, cmp Comparator, value interface{}) (*Criteria, error) {
	if !cmp.valid() {
		return nil, invalidf("unknown comparator %q", cmp)
	}
	f, def, err := lookupField(field)
	if err != nil {
		return nil, err
	}
	v, err := convertValue(def.typ, cmp, value)
	if err != nil {
		return nil, invalidf("field %q: %v", field, err)
	}

	table := b.resolveTableForSimpleCriteria(def)
	return &Criteria{
		Comparator: cmp,
		Left:       fieldVariable(f, table),
		Right:      valueVariable(v),
	}, nil
}

func (b *Builder) createPropertyCriteria(key string, cmp Comparator, value interface{}) (*Criteria, error) {
	if !cmp.valid() {
		return nil, invalidf("unknown comparator %q", cmp)
	}
	if key == "" {
		return nil, invalidf("empty property key")
	}
	v, err := convertValue(typeString, cmp, value)
	if err != nil {
		return nil, invalidf("property %q: %v", key, err)
	}

	var table SqlTable
	if b.domain == DomainProperties {
		table = b.resultTable
	} else {
		table = b.resolveTableForPropertyCriteria()
	}
	return &Criteria{
		Comparator: cmp,
		Property:   true,
		KeyLeft:    fieldVariable(FieldPropertyKey, table),
		KeyRight:   valueVariable(key),
		Left:       fieldVariable(FieldPropertyValue, table),
		Right:      valueVariable(v),
	}, nil
}

// AddSimpleCriteria adds the criterion "field cmp value".
func (b *Builder) AddSimpleCriteria(field string, cmp Comparator, value interface{}) error {
	c, err := b.createSimpleCriteria(field, cmp, value)
	if err != nil {
		b.fail(err)
		return err
	}
	b.addCriteria(c)
	return nil
}

// AddPropertyCriteria adds the criterion "property key has a value cmp
// value".
func (b *Builder) AddPropertyCriteria(key string, cmp Comparator, value interface{}) error {
	c, err := b.createPropertyCriteria(key, cmp, value)
	if err != nil {
		b.fail(err)
		return err
	}
	b.addCriteria(c)
	return nil
}

func (b *Builder) addCriteria(c *Criteria) {
	b.addElement(c)
}

// Include sets the result fields.
func (b *Builder) Include(names ...string) error {
	for _, name := range names {
		f, def, err := lookupField(name)
		if err != nil {
			b.fail(err)
			return err
		}
		if def.table == TableNodeProps && b.domain != DomainProperties {
			err := invalidf("field %q is only available in the %s domain", name, DomainProperties)
			b.fail(err)
			return err
		}
		b.resultFields = append(b.resultFields, f)
	}
	return nil
}

// SortBy orders results by names.
func (b *Builder) SortBy(direction SortDirection, names ...string) error {
	if direction != Ascending && direction != Descending {
		err := invalidf("unknown sort direction %q", direction)
		b.fail(err)
		return err
	}
	s := &Sort{Direction: direction}
	for _, name := range names {
		f, _, err := lookupField(name)
		if err != nil {
			b.fail(err)
			return err
		}
		s.Fields = append(s.Fields, f)
	}
	b.sort = s
	return nil
}

// Limit caps the number of results, 0 means unlimited.
func (b *Builder) Limit(n int) { b.limit = n }

// Offset skips the first n results.
func (b *Builder) Offset(n int) { b.offset = n }

// Build returns the query or the first error met while building it.
func (b *Builder) Build() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.pending) > 0 || len(b.groups) > 0 {
		return nil, invalidf("unbalanced query")
	}
	if b.limit < 0 || b.offset < 0 {
		return nil, invalidf("negative limit or offset")
	}

	resultFields := b.resultFields
	if len(resultFields) == 0 {
		resultFields = defaultResultFields[b.domain]
	}
	if b.sort != nil {
		for _, f := range b.sort.Fields {
			if !containsField(resultFields, f) {
				return nil, invalidf("sort field %q must be included in the results", f)
			}
		}
	}

	return &Query{
		Domain:       b.domain,
		Elements:     append([]Element(nil), b.elements...),
		ResultFields: append([]Field(nil), resultFields...),
		Sort:         b.sort,
		Limit:        b.limit,
		Offset:       b.offset,
		resultTable:  b.resultTable,
		tables:       append([]SqlTable(nil), b.tables...),
	}, nil
}

func containsField(fields []Field, f Field) bool {
	for _, candidate := range fields {
		if candidate == f {
			return true
		}
	}
	return false
}
