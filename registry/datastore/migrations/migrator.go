package migrations

import (
	"database/sql"
	"strings"

	migrate "github.com/rubenv/sql-migrate"
)

const (
	migrationTableName = "schema_migrations"
	dialect            = "postgres"
)

func init() {
	migrate.SetTable(migrationTableName)
}

// Migrator applies schema migrations to a database.
type Migrator struct {
	db             *sql.DB
	skipPostDeploy bool
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// SkipPostDeployment leaves post deployment migrations out when migrating up.
func SkipPostDeployment() MigratorOption {
	return func(m *Migrator) {
		m.skipPostDeploy = true
	}
}

// NewMigrator returns a Migrator for db.
func NewMigrator(db *sql.DB, opts ...MigratorOption) *Migrator {
	m := &Migrator{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Migrator) source(direction migrate.MigrationDirection) migrate.MigrationSource {
	migs := allMigrations
	if direction == migrate.Up && m.skipPostDeploy {
		migs = NonPostDeployment()
	}

	src := &migrate.MemoryMigrationSource{}
	for _, mig := range migs {
		src.Migrations = append(src.Migrations, mig.Migration)
	}
	return src
}

// versionFromID returns the version of a migration ID in the form of
// `<version>_<name>`.
func versionFromID(id string) string {
	return strings.Split(id, "_")[0]
}

// Version returns the version of the last applied migration, if any.
func (m *Migrator) Version() (string, error) {
	records, err := migrate.GetMigrationRecords(m.db, dialect)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	return versionFromID(records[len(records)-1].Id), nil
}

// LatestVersion returns the version of the most recent known migration, if
// any.
func (m *Migrator) LatestVersion() (string, error) {
	all, err := m.source(migrate.Down).FindMigrations()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", nil
	}

	return versionFromID(all[len(all)-1].Id), nil
}

// Up applies all pending migrations and returns how many were applied.
func (m *Migrator) Up() (int, error) {
	return m.UpN(0)
}

// UpN applies up to n pending migrations, all of them when n is 0.
func (m *Migrator) UpN(n int) (int, error) {
	return migrate.ExecMax(m.db, dialect, m.source(migrate.Up), migrate.Up, n)
}

// UpNPlan returns the IDs of the migrations UpN would apply.
func (m *Migrator) UpNPlan(n int) ([]string, error) {
	planned, _, err := migrate.PlanMigration(m.db, dialect, m.source(migrate.Up), migrate.Up, n)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(planned))
	for _, p := range planned {
		ids = append(ids, p.Id)
	}
	return ids, nil
}

// Down reverts all applied migrations and returns how many were reverted.
func (m *Migrator) Down() (int, error) {
	return migrate.ExecMax(m.db, dialect, m.source(migrate.Down), migrate.Down, 0)
}
