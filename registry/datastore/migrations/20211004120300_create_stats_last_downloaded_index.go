package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20211004120300_create_stats_last_downloaded_index",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS index_stats_on_last_downloaded ON stats USING btree (last_downloaded)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_stats_on_last_downloaded CASCADE",
			},
		},
		PostDeployment: true,
	}

	allMigrations = append(allMigrations, m)
}
