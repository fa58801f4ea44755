package repository

import (
	"fmt"

	"github.com/mavenhub/registry/configuration"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators shared by repositories built from
// configuration.
type Dependencies struct {
	Storage Storage
	// Tracker is optional.
	Tracker Tracker
	// InfoCache is optional.
	InfoCache   InfoCache
	NewUpstream func(configuration.RemoteRepository) (Upstream, error)
	Logger      logrus.FieldLogger
}

// FromConfig builds a registry holding the configured repositories.
func FromConfig(config configuration.Repositories, deps Dependencies) (*Registry, error) {
	reg := NewRegistry()

	common := func(key string, releases, snapshots bool) []Option {
		opts := []Option{WithReleases(releases), WithSnapshots(snapshots)}
		if deps.Tracker != nil {
			opts = append(opts, WithTracker(deps.Tracker))
		}
		if deps.Logger != nil {
			opts = append(opts, WithLogger(deps.Logger.WithField("repository", key)))
		}
		return opts
	}

	for _, c := range config.Local {
		if err := reg.Register(NewLocalRepo(c.Key, deps.Storage, common(c.Key, c.Releases(), c.Snapshots())...)); err != nil {
			return nil, err
		}
	}

	for _, c := range config.Remote {
		upstream, err := deps.NewUpstream(c)
		if err != nil {
			return nil, fmt.Errorf("configuring remote repository %q: %w", c.Key, err)
		}

		opts := common(c.Key, c.Releases(), c.Snapshots())
		if deps.InfoCache != nil {
			opts = append(opts, WithInfoCache(deps.InfoCache, c.RetrievalCachePeriod, c.MissedRetrievalCachePeriod))
		}
		if c.StoreLocally {
			cache := NewCacheRepo(c.CacheKey(), deps.Storage, common(c.CacheKey(), c.Releases(), c.Snapshots())...)
			if err := reg.Register(cache); err != nil {
				return nil, err
			}
			opts = append(opts, WithCache(cache))
		}

		if err := reg.Register(NewRemoteRepo(c.Key, upstream, opts...)); err != nil {
			return nil, err
		}
	}

	for _, c := range config.Virtual {
		members := make([]Repository, 0, len(c.Repositories))
		for _, key := range c.Repositories {
			m, ok := reg.Repository(key)
			if !ok {
				return nil, fmt.Errorf("virtual repository %q references unknown repository %q", c.Key, key)
			}
			members = append(members, m)
		}
		if err := reg.Register(NewVirtualRepo(c.Key, members...)); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
