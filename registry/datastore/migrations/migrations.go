// Package migrations holds the schema of the item index database.
package migrations

import (
	migrate "github.com/rubenv/sql-migrate"
)

var allMigrations []*Migration

// Migration is a schema change. PostDeployment migrations may run once all
// nodes serve the new code.
type Migration struct {
	*migrate.Migration
	PostDeployment bool
}

// All returns every known migration in application order.
func All() []*Migration {
	return allMigrations
}

// NonPostDeployment returns the migrations which must run before deploying.
func NonPostDeployment() []*Migration {
	var migs []*Migration
	for _, m := range allMigrations {
		if !m.PostDeployment {
			migs = append(migs, m)
		}
	}
	return migs
}
