package repository

import (
	"context"
	"fmt"
	"io"
)

// VirtualRepo aggregates other repositories under one key. Lookups consult
// members in declaration order and the first hit wins.
type VirtualRepo struct {
	key     string
	members []Repository
}

// NewVirtualRepo returns a virtual repository over members.
func NewVirtualRepo(key string, members ...Repository) *VirtualRepo {
	return &VirtualRepo{key: key, members: members}
}

// Key implements Repository.
func (r *VirtualRepo) Key() string { return r.key }

// Kind implements Repository.
func (r *VirtualRepo) Kind() Kind { return KindVirtual }

// IsCache implements Repository.
func (r *VirtualRepo) IsCache() bool { return false }

// HandleReleases implements Repository.
func (r *VirtualRepo) HandleReleases() bool { return true }

// HandleSnapshots implements Repository.
func (r *VirtualRepo) HandleSnapshots() bool { return true }

// Members returns the aggregated repositories.
func (r *VirtualRepo) Members() []Repository {
	return append([]Repository(nil), r.members...)
}

// Contains reports whether key names a member. A remote member includes its
// cache repository.
func (r *VirtualRepo) Contains(key string) bool {
	for _, m := range r.members {
		if m.Key() == key {
			return true
		}
		if remote, ok := m.(*RemoteRepo); ok && remote.Cache() != nil && remote.Cache().Key() == key {
			return true
		}
	}
	return false
}

// Info implements Repository.
func (r *VirtualRepo) Info(ctx context.Context, path string) (RepoResource, error) {
	for _, m := range r.members {
		res, err := m.Info(ctx, path)
		if err != nil {
			continue
		}
		if res.Found {
			return res, nil
		}
	}
	return NotFound(NewRepoPath(r.key, path)), nil
}

// Open implements Repository by delegating to the member owning res.
func (r *VirtualRepo) Open(ctx context.Context, res RepoResource) (io.ReadCloser, error) {
	for _, m := range r.members {
		if m.Key() == res.RepoPath.RepoKey {
			return m.Open(ctx, res)
		}
	}
	return nil, fmt.Errorf("repository %q is not a member of %q", res.RepoPath.RepoKey, r.key)
}
