// +build integration

package migrations_test

import (
	"testing"

	"github.com/mavenhub/registry/registry/datastore/migrations"
	"github.com/mavenhub/registry/registry/datastore/testutil"
	"github.com/stretchr/testify/require"
)

func TestMigrator_Up(t *testing.T) {
	db, err := testutil.NewDB()
	require.NoError(t, err)
	defer db.Close()

	m := migrations.NewMigrator(db.DB)
	_, err = m.Up()
	require.NoError(t, err)

	current, err := m.Version()
	require.NoError(t, err)

	latest, err := m.LatestVersion()
	require.NoError(t, err)
	require.Equal(t, latest, current)
}

func TestMigrator_Down(t *testing.T) {
	db, err := testutil.NewDB()
	require.NoError(t, err)
	defer db.Close()

	m := migrations.NewMigrator(db.DB)
	_, err = m.Down()
	require.NoError(t, err)
	defer m.Up()

	v, err := m.Version()
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestMigrator_UpN(t *testing.T) {
	db, err := testutil.NewDB()
	require.NoError(t, err)
	defer db.Close()

	m := migrations.NewMigrator(db.DB)
	_, err = m.Down()
	require.NoError(t, err)
	defer m.Up()

	all := migrations.All()

	n, err := m.UpN(1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	v, err := m.Version()
	require.NoError(t, err)
	require.Equal(t, all[0].Id[:14], v)

	// resume and apply the remaining
	n, err = m.UpN(0)
	require.NoError(t, err)
	require.Equal(t, len(all)-1, n)

	// idempotent
	n, err = m.UpN(100)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMigrator_UpNPlan(t *testing.T) {
	db, err := testutil.NewDB()
	require.NoError(t, err)
	defer db.Close()

	m := migrations.NewMigrator(db.DB)
	_, err = m.Down()
	require.NoError(t, err)
	defer m.Up()

	var allPlan []string
	for _, mig := range migrations.All() {
		allPlan = append(allPlan, mig.Id)
	}

	plan, err := m.UpNPlan(2)
	require.NoError(t, err)
	require.Equal(t, allPlan[:2], plan)

	_, err = m.UpN(2)
	require.NoError(t, err)

	plan, err = m.UpNPlan(0)
	require.NoError(t, err)
	require.Equal(t, allPlan[2:], plan)
}

func TestMigrator_SkipPostDeployment(t *testing.T) {
	db, err := testutil.NewDB()
	require.NoError(t, err)
	defer db.Close()

	m := migrations.NewMigrator(db.DB, migrations.SkipPostDeployment())
	_, err = m.Down()
	require.NoError(t, err)
	defer migrations.NewMigrator(db.DB).Up()

	n, err := m.Up()
	require.NoError(t, err)
	require.Equal(t, len(migrations.NonPostDeployment()), n)
}
