package datastore

import (
	"context"
	"fmt"

	"github.com/mavenhub/registry/registry/aql"
	"github.com/mavenhub/registry/registry/datastore/metrics"
)

// Row is a search result keyed by result field.
type Row map[aql.Field]interface{}

// AQLExecutor runs structured queries against the item index.
type AQLExecutor struct {
	db Queryer
}

// NewAQLExecutor builds a new AQLExecutor.
func NewAQLExecutor(db Queryer) *AQLExecutor {
	return &AQLExecutor{db: db}
}

// Execute runs q and returns its rows in result order. Columns of unmatched
// outer joins are nil.
func (e *AQLExecutor) Execute(ctx context.Context, q *aql.Query) ([]Row, error) {
	stmt, err := q.SQL()
	if err != nil {
		return nil, err
	}

	defer metrics.InstrumentQuery(metrics.TableNodes, "aql_"+string(q.Domain))()

	rows, err := e.db.QueryContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("running %s query: %w", q.Domain, err)
	}
	defer rows.Close()

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(stmt.Fields))
		dest := make([]interface{}, len(stmt.Fields))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", q.Domain, err)
		}

		row := make(Row, len(stmt.Fields))
		for i, f := range stmt.Fields {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[f] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s rows: %w", q.Domain, err)
	}
	metrics.AQLRows(string(q.Domain), len(result))

	return result, nil
}
