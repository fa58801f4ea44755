package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20211004120200_create_stats_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS stats (
					node_id bigint NOT NULL,
					download_count bigint NOT NULL DEFAULT 0,
					last_downloaded timestamp WITH time zone NOT NULL,
					CONSTRAINT pk_stats PRIMARY KEY (node_id),
					CONSTRAINT fk_stats_node_id_nodes FOREIGN KEY (node_id) REFERENCES nodes (node_id) ON DELETE CASCADE
				)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS stats CASCADE",
			},
		},
	}

	allMigrations = append(allMigrations, m)
}
