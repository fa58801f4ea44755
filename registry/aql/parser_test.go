package aql

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func parseSQL(t *testing.T, query string) SQLQuery {
	t.Helper()

	q, err := Parse(strings.NewReader(query))
	require.NoError(t, err)
	s, err := q.SQL()
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	s := parseSQL(t, `{
		"find": "items",
		"criteria": {"repo": "libs", "$or": [{"name": {"$match": "*.jar"}}, {"@license": "GPL"}]},
		"include": ["repo", "name"],
		"sort": {"$asc": ["name"]},
		"limit": 10
	}`)

	require.Equal(t, "SELECT DISTINCT n.repo, n.node_name FROM nodes n"+
		" LEFT JOIN node_props np100 ON np100.node_id = n.node_id"+
		" WHERE n.repo = $1 AND (n.node_name LIKE $2 OR (np100.prop_key = $3 AND np100.prop_value = $4))"+
		" ORDER BY n.node_name ASC LIMIT 10", s.Text)
	require.Equal(t, []interface{}{"libs", "%.jar", "license", "GPL"}, s.Args)
}

func TestParse_KeepsMemberOrder(t *testing.T) {
	s := parseSQL(t, `{"criteria": {"name": "b.jar", "repo": "libs"}, "include": ["name"]}`)
	require.Equal(t, "SELECT DISTINCT n.node_name FROM nodes n WHERE n.node_name = $1 AND n.repo = $2", s.Text)
}

func TestParse_IndependentProperties(t *testing.T) {
	s := parseSQL(t, `{"criteria": {"@license": "GPL", "@os": "linux"}, "include": ["name"]}`)
	require.Equal(t, "SELECT DISTINCT n.node_name FROM nodes n"+
		" LEFT JOIN node_props np100 ON np100.node_id = n.node_id"+
		" LEFT JOIN node_props np101 ON np101.node_id = n.node_id"+
		" WHERE (np100.prop_key = $1 AND np100.prop_value = $2) AND (np101.prop_key = $3 AND np101.prop_value = $4)", s.Text)
}

func TestParse_SameProperty(t *testing.T) {
	s := parseSQL(t, `{"criteria": {"$msp": [{"@license": "GPL"}, {"@license": {"$ne": "LGPL"}}]}, "include": ["name"]}`)
	require.Equal(t, "SELECT DISTINCT n.node_name FROM nodes n"+
		" LEFT JOIN node_props np100 ON np100.node_id = n.node_id"+
		" WHERE ((np100.prop_key = $1 AND np100.prop_value = $2)"+
		" AND ((np100.prop_key != $3 OR np100.prop_value != $4 OR np100.node_id IS NULL)"+
		" AND (np100.prop_key IS NOT NULL AND np100.prop_value IS NOT NULL OR np100.node_id IS NULL)))", s.Text)
}

func TestParse_MultiMemberOperands(t *testing.T) {
	s := parseSQL(t, `{"criteria": {"$or": [{"repo": "a", "name": "b"}, {"repo": "c"}]}, "include": ["name"]}`)
	require.Equal(t, "SELECT DISTINCT n.node_name FROM nodes n WHERE ((n.repo = $1 AND n.node_name = $2) OR n.repo = $3)", s.Text)
}

func TestParse_ComparatorObject(t *testing.T) {
	s := parseSQL(t, `{"criteria": {"size": {"$gte": 10, "$lt": 20}, "modified": {"$gt": "2021-06-01T00:00:00Z"}}, "include": ["name"]}`)
	require.Equal(t, "SELECT DISTINCT n.node_name FROM nodes n WHERE (n.size >= $1 AND n.size < $2) AND n.modified > $3", s.Text)
	require.Equal(t, []interface{}{int64(10), int64(20), time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)}, s.Args)
}

func TestParse_PropertiesDomain(t *testing.T) {
	q, err := Parse(strings.NewReader(`{"find": "properties", "criteria": {"@license": "GPL"}}`))
	require.NoError(t, err)
	require.Equal(t, DomainProperties, q.Domain)
	require.Equal(t, []Field{FieldRepo, FieldPath, FieldName, FieldPropertyKey, FieldPropertyValue}, q.ResultFields)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"not json", `{`},
		{"unknown member", `{"select": "*"}`},
		{"unknown domain", `{"find": "builds"}`},
		{"unknown operator", `{"criteria": {"$xor": [{"repo": "a"}]}}`},
		{"unknown field", `{"criteria": {"color": "red"}}`},
		{"boolean value", `{"criteria": {"repo": true}}`},
		{"empty comparison", `{"criteria": {"repo": {}}}`},
		{"scalar operand", `{"criteria": {"$or": ["a"]}}`},
		{"two sort directions", `{"include": ["name"], "sort": {"$asc": ["name"], "$desc": ["name"]}}`},
		{"criteria not an object", `{"criteria": ["repo"]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(test.query))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidQuery))
		})
	}
}
