package resolver

import (
	"context"
	"fmt"

	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/repository"
)

// BuildCandidates returns the repositories consulted for req in priority
// order: local repositories, then cache repositories, then remote
// repositories. Requests from peer nodes never reach remote repositories.
// A target group narrows the local repositories to the named one, caches and
// remotes are still consulted. Requests addressing a repository only consult
// that repository, or the members of a virtual repository.
func BuildCandidates(ctx context.Context, reg *repository.Registry, req repository.Request) ([]repository.Repository, error) {
	accept, err := scope(reg, req.RepoKey)
	if err != nil {
		return nil, err
	}

	var candidates []repository.Repository
	add := func(repos []repository.Repository) {
		for _, r := range repos {
			if accept(r.Key()) {
				candidates = append(candidates, r)
			}
		}
	}

	if req.TargetGroup != repository.DefaultGroup {
		repo, ok := reg.LocalRepository(req.TargetGroup)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrRepositoryNotFound, req.TargetGroup)
		}
		add([]repository.Repository{repo})
	} else {
		add(reg.LocalRepositories())
	}
	add(reg.CacheRepositories())
	if req.FromPeerNode {
		dcontext.GetLogger(ctx).WithField("path", req.Path).Debug("request from peer node, skipping remote repositories")
	} else {
		add(reg.RemoteRepositories())
	}

	return candidates, nil
}

// scope returns the filter of repositories reachable through key.
func scope(reg *repository.Registry, key string) (func(string) bool, error) {
	if key == "" {
		return func(string) bool { return true }, nil
	}
	if v, ok := reg.VirtualRepository(key); ok {
		return v.Contains, nil
	}

	repo, ok := reg.Repository(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRepositoryNotFound, key)
	}
	keys := map[string]bool{key: true}
	if remote, ok := repo.(*repository.RemoteRepo); ok && remote.Cache() != nil {
		keys[remote.Cache().Key()] = true
	}
	return func(k string) bool { return keys[k] }, nil
}
