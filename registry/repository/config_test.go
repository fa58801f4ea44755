package repository

import (
	"testing"
	"time"

	"github.com/mavenhub/registry/configuration"
	"github.com/stretchr/testify/require"
)

func TestFromConfig(t *testing.T) {
	no := false
	config := configuration.Repositories{
		Local: []configuration.LocalRepository{
			{Key: "libs-release-local", HandleSnapshots: &no},
		},
		Remote: []configuration.RemoteRepository{
			{Key: "central", URL: "https://repo1.maven.org/maven2", StoreLocally: true, RetrievalCachePeriod: time.Hour},
			{Key: "jcenter", URL: "https://jcenter.bintray.com"},
		},
		Virtual: []configuration.VirtualRepository{
			{Key: "repo", Repositories: []string{"libs-release-local", "central"}},
		},
	}

	var upstreams []string
	reg, err := FromConfig(config, Dependencies{
		Storage: newFakeStorage(),
		NewUpstream: func(c configuration.RemoteRepository) (Upstream, error) {
			upstreams = append(upstreams, c.URL)
			return &fakeUpstream{}, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://repo1.maven.org/maven2", "https://jcenter.bintray.com"}, upstreams)

	local, ok := reg.LocalRepository("libs-release-local")
	require.True(t, ok)
	require.False(t, local.HandleSnapshots())

	require.Len(t, reg.CacheRepositories(), 1)
	require.Equal(t, "central-cache", reg.CacheRepositories()[0].Key())
	require.Len(t, reg.RemoteRepositories(), 2)

	central, _ := reg.Repository("central")
	require.NotNil(t, central.(*RemoteRepo).Cache())
	jcenter, _ := reg.Repository("jcenter")
	require.Nil(t, jcenter.(*RemoteRepo).Cache())

	virtual, ok := reg.VirtualRepository("repo")
	require.True(t, ok)
	require.Len(t, virtual.Members(), 2)
}
