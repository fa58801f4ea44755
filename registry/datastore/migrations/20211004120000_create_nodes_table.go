package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &Migration{
		Migration: &migrate.Migration{
			Id: "20211004120000_create_nodes_table",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS nodes (
					node_id bigint NOT NULL GENERATED BY DEFAULT AS IDENTITY,
					repo text NOT NULL,
					node_path text NOT NULL,
					node_name text NOT NULL,
					node_type text NOT NULL DEFAULT 'file',
					depth integer NOT NULL,
					size bigint NOT NULL DEFAULT 0,
					sha256 text,
					created timestamp WITH time zone NOT NULL DEFAULT now(),
					modified timestamp WITH time zone NOT NULL DEFAULT now(),
					updated timestamp WITH time zone NOT NULL DEFAULT now(),
					CONSTRAINT pk_nodes PRIMARY KEY (node_id),
					CONSTRAINT unique_nodes_repo_path_name UNIQUE (repo, node_path, node_name)
				)`,
				"CREATE INDEX IF NOT EXISTS index_nodes_on_repo_and_node_path ON nodes USING btree (repo, node_path text_pattern_ops)",
				"CREATE INDEX IF NOT EXISTS index_nodes_on_sha256 ON nodes USING btree (sha256)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS index_nodes_on_sha256 CASCADE",
				"DROP INDEX IF EXISTS index_nodes_on_repo_and_node_path CASCADE",
				"DROP TABLE IF EXISTS nodes CASCADE",
			},
		},
	}

	allMigrations = append(allMigrations, m)
}
