package aql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// request is the json form of a query:
//
//	{
//	  "find": "items",
//	  "criteria": {"repo": "libs-release", "$or": [{"name": {"$match": "*.jar"}}, {"@license": "GPL"}]},
//	  "include": ["repo", "path", "name"],
//	  "sort": {"$desc": ["name"]},
//	  "limit": 10,
//	  "offset": 0
//	}
//
// Keys starting with "@" are property criteria. "$and" and "$or" combine the
// criteria of the listed objects, "$msp" makes the property criteria of the
// listed objects match the same property entry.
type request struct {
	Find     Domain                     `json:"find"`
	Criteria json.RawMessage            `json:"criteria"`
	Include  []string                   `json:"include"`
	Sort     map[SortDirection][]string `json:"sort"`
	Limit    int                        `json:"limit"`
	Offset   int                        `json:"offset"`
}

// Parse compiles the json query read from r.
func Parse(r io.Reader) (*Query, error) {
	var req request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, invalidf("decoding query: %v", err)
	}

	domain := req.Find
	if domain == "" {
		domain = DomainItems
	}
	if domain != DomainItems && domain != DomainProperties {
		return nil, invalidf("unknown domain %q", req.Find)
	}

	b := NewBuilder(domain)
	if len(req.Criteria) > 0 && string(req.Criteria) != "null" {
		if err := parseCriteria(b, req.Criteria); err != nil {
			return nil, err
		}
	}
	if err := b.Include(req.Include...); err != nil {
		return nil, err
	}
	if len(req.Sort) > 1 {
		return nil, invalidf("a single sort direction is supported")
	}
	for dir, names := range req.Sort {
		if err := b.SortBy(dir, names...); err != nil {
			return nil, err
		}
	}
	b.Limit(req.Limit)
	b.Offset(req.Offset)

	return b.Build()
}

// member is a key of a json object, in document order.
type member struct {
	key   string
	value json.RawMessage
}

// members decodes a json object keeping the order of its keys, which is the
// order criteria are combined in.
func members(raw json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object")
	}

	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// parseCriteria adds the criteria of an object. Members are and-ed unless an
// enclosing operator says otherwise.
func parseCriteria(b *Builder, raw json.RawMessage) error {
	ms, err := members(raw)
	if err != nil {
		return invalidf("criteria: %v", err)
	}

	for _, m := range ms {
		var err error
		switch {
		case m.key == "$and":
			err = parseGroup(b, And, m.value)
		case m.key == "$or":
			err = parseGroup(b, Or, m.value)
		case m.key == "$msp":
			err = parseGroup(b, FreezeJoin, m.value)
		case strings.HasPrefix(m.key, "$"):
			err = invalidf("unknown operator %q", m.key)
		case strings.HasPrefix(m.key, "@"):
			err = parseComparisons(b, m.value, func(cmp Comparator, v interface{}) error {
				return b.AddPropertyCriteria(strings.TrimPrefix(m.key, "@"), cmp, v)
			})
		default:
			err = parseComparisons(b, m.value, func(cmp Comparator, v interface{}) error {
				return b.AddSimpleCriteria(m.key, cmp, v)
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseGroup adds the objects listed in raw as a group combined by kind.
func parseGroup(b *Builder, kind OperatorKind, raw json.RawMessage) error {
	var items []json.RawMessage
	if isObject(raw) {
		items = []json.RawMessage{raw}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return invalidf("operator operands must be objects: %v", err)
	}

	b.OpenParen()
	b.PushOperator(kind)
	for _, item := range items {
		if err := parseOperand(b, item); err != nil {
			return err
		}
	}
	b.PopOperator()
	b.CloseParen()

	return nil
}

// parseOperand adds one operand of a group. Operands with several members
// are and-ed in a group of their own.
func parseOperand(b *Builder, raw json.RawMessage) error {
	ms, err := members(raw)
	if err != nil {
		return invalidf("criteria: %v", err)
	}
	if len(ms) <= 1 {
		return parseCriteria(b, raw)
	}

	b.OpenParen()
	b.PushOperator(And)
	if err := parseCriteria(b, raw); err != nil {
		return err
	}
	b.PopOperator()
	b.CloseParen()

	return nil
}

// parseComparisons reads either a bare value, compared for equality, or an
// object of comparators. Several comparators are and-ed.
func parseComparisons(b *Builder, raw json.RawMessage, add func(Comparator, interface{}) error) error {
	if !isObject(raw) {
		v, err := decodeValue(raw)
		if err != nil {
			return err
		}
		return add(Equals, v)
	}

	ms, err := members(raw)
	if err != nil {
		return invalidf("comparison: %v", err)
	}
	if len(ms) == 0 {
		return invalidf("empty comparison")
	}
	if len(ms) > 1 {
		b.OpenParen()
		b.PushOperator(And)
	}
	for _, m := range ms {
		v, err := decodeValue(m.value)
		if err != nil {
			return err
		}
		if err := add(Comparator(m.key), v); err != nil {
			return err
		}
	}
	if len(ms) > 1 {
		b.PopOperator()
		b.CloseParen()
	}
	return nil
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, invalidf("decoding value: %v", err)
	}
	switch v.(type) {
	case string, json.Number:
		return v, nil
	default:
		return nil, invalidf("values must be strings or numbers, got %s", string(raw))
	}
}
