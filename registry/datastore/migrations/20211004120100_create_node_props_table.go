package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20211004120100_create_node_props_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS node_props (
					prop_id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					node_id bigint NOT NULL,
					prop_key text NOT NULL,
					prop_value text NOT NULL DEFAULT '',
					CONSTRAINT pk_node_props PRIMARY KEY (prop_id),
					CONSTRAINT fk_node_props_node_id_nodes FOREIGN KEY (node_id) REFERENCES nodes (node_id) ON DELETE CASCADE,
					CONSTRAINT unique_node_props_node_id_key_value UNIQUE (node_id, prop_key, prop_value)
				)`,
				"CREATE INDEX IF NOT EXISTS index_node_props_on_prop_key_and_prop_value ON node_props USING btree (prop_key, prop_value)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_node_props_on_prop_key_and_prop_value CASCADE",
				"DROP TABLE IF EXISTS node_props CASCADE",
			},
		},
	}

	allMigrations = append(allMigrations, m)
}
