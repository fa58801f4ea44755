// +build integration

package datastore_test

import (
	"strings"
	"testing"

	"github.com/mavenhub/registry/registry/aql"
	"github.com/mavenhub/registry/registry/datastore"
	"github.com/stretchr/testify/require"
)

func runAQL(t *testing.T, query string) []datastore.Row {
	t.Helper()

	q, err := aql.Parse(strings.NewReader(query))
	require.NoError(t, err)

	rows, err := datastore.NewAQLExecutor(suite.db).Execute(suite.ctx, q)
	require.NoError(t, err)
	return rows
}

func names(rows []datastore.Row) []string {
	var nn []string
	for _, r := range rows {
		nn = append(nn, r[aql.FieldName].(string))
	}
	return nn
}

func TestAQLExecutor_Execute(t *testing.T) {
	reloadFixtures(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "simple criteria",
			query: `{"criteria": {"repo": "libs-release"}, "include": ["name"], "sort": {"$asc": ["name"]}}`,
			want:  []string{"lib-1.0.jar", "lib-1.0.pom", "lib-2.0.jar"},
		},
		{
			name:  "wildcard match",
			query: `{"criteria": {"name": {"$match": "*.pom"}}, "include": ["name"], "sort": {"$asc": ["name"]}}`,
			want:  []string{"junit-4.12.pom", "lib-1.0.pom"},
		},
		{
			name:  "underscore matched literally",
			query: `{"criteria": {"path": {"$match": "org/my_lib*"}}, "include": ["name"]}`,
			want:  []string{"x-1.0.jar"},
		},
		{
			name:  "property",
			query: `{"criteria": {"@build.number": "43"}, "include": ["name"]}`,
			want:  []string{"lib-2.0.jar"},
		},
		{
			name:  "negated property matches items without properties",
			query: `{"criteria": {"repo": "libs-release", "@license": {"$ne": "GPL"}}, "include": ["name"], "sort": {"$asc": ["name"]}}`,
			want:  []string{"lib-1.0.jar", "lib-1.0.pom", "lib-2.0.jar"},
		},
		{
			name:  "negated property excludes the matching item",
			query: `{"criteria": {"repo": "central-cache", "@license": {"$ne": "EPL-1.0"}}, "include": ["name"], "sort": {"$asc": ["name"]}}`,
			want:  []string{"junit-4.12.pom", "slf4j-api-1.7.30.jar", "x-1.0.jar"},
		},
		{
			name:  "properties on the same row",
			query: `{"criteria": {"$msp": [{"@build.name": "acme"}, {"@build.number": "42"}]}, "include": ["name"]}`,
			want:  nil,
		},
		{
			name:  "properties on any row",
			query: `{"criteria": {"@build.name": "acme", "@build.number": "42"}, "include": ["name"]}`,
			want:  []string{"lib-1.0.jar"},
		},
		{
			name:  "or",
			query: `{"criteria": {"$or": [{"@license": "EPL-1.0"}, {"size": {"$gt": 40000}}]}, "include": ["name"], "sort": {"$asc": ["name"]}}`,
			want:  []string{"junit-4.12.jar", "slf4j-api-1.7.30.jar"},
		},
		{
			name:  "download stats",
			query: `{"criteria": {"stat.downloads": {"$gte": 2}}, "include": ["name"], "sort": {"$desc": ["name"]}}`,
			want:  []string{"junit-4.12.pom", "junit-4.12.jar"},
		},
		{
			name:  "limit and offset",
			query: `{"criteria": {"repo": "central-cache"}, "include": ["name"], "sort": {"$asc": ["name"]}, "limit": 2, "offset": 1}`,
			want:  []string{"junit-4.12.pom", "slf4j-api-1.7.30.jar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, names(runAQL(t, tt.query)))
		})
	}
}

func TestAQLExecutor_Execute_PropertiesDomain(t *testing.T) {
	reloadFixtures(t)

	rows := runAQL(t, `{
		"find": "properties",
		"criteria": {"name": "lib-1.0.jar"},
		"include": ["name", "property.key", "property.value"],
		"sort": {"$asc": ["property.key"]}
	}`)

	require.Equal(t, []datastore.Row{
		{aql.FieldName: "lib-1.0.jar", aql.FieldPropertyKey: "build.name", aql.FieldPropertyValue: "acme"},
		{aql.FieldName: "lib-1.0.jar", aql.FieldPropertyKey: "build.number", aql.FieldPropertyValue: "42"},
	}, rows)
}

func TestAQLExecutor_Execute_UnmatchedJoinIsNil(t *testing.T) {
	reloadFixtures(t)

	rows := runAQL(t, `{"criteria": {"name": "x-1.0.jar"}, "include": ["name", "stat.downloads"]}`)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0][aql.FieldDownloads])
}
