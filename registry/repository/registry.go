package repository

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// ErrDuplicateKey is returned when registering two repositories with the same
// key.
var ErrDuplicateKey = errors.New("duplicate repository key")

// Registry holds the repositories served by the node. Each kind keeps its
// declaration order, which is the resolution priority order. A Registry is
// populated at startup and read-only afterwards.
type Registry struct {
	locals   []Repository
	caches   []Repository
	remotes  []Repository
	virtuals []*VirtualRepo
	byKey    map[string]Repository
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Repository)}
}

// Register adds repo to the registry.
func (r *Registry) Register(repo Repository) error {
	if _, ok := r.byKey[repo.Key()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, repo.Key())
	}
	r.byKey[repo.Key()] = repo

	switch repo.Kind() {
	case KindLocal:
		r.locals = append(r.locals, repo)
	case KindCache:
		r.caches = append(r.caches, repo)
	case KindRemote:
		r.remotes = append(r.remotes, repo)
	case KindVirtual:
		r.virtuals = append(r.virtuals, repo.(*VirtualRepo))
	}

	return nil
}

// Repository returns the repository registered under key.
func (r *Registry) Repository(key string) (Repository, bool) {
	repo, ok := r.byKey[key]
	return repo, ok
}

// LocalRepository returns the local repository registered under key.
func (r *Registry) LocalRepository(key string) (Repository, bool) {
	repo, ok := r.byKey[key]
	if !ok || repo.Kind() != KindLocal {
		return nil, false
	}
	return repo, true
}

// VirtualRepository returns the virtual repository registered under key.
func (r *Registry) VirtualRepository(key string) (*VirtualRepo, bool) {
	repo, ok := r.byKey[key]
	if !ok || repo.Kind() != KindVirtual {
		return nil, false
	}
	return repo.(*VirtualRepo), true
}

// LocalRepositories returns local repositories in priority order.
func (r *Registry) LocalRepositories() []Repository {
	return append([]Repository(nil), r.locals...)
}

// CacheRepositories returns cache repositories in priority order.
func (r *Registry) CacheRepositories() []Repository {
	return append([]Repository(nil), r.caches...)
}

// RemoteRepositories returns remote repositories in priority order.
func (r *Registry) RemoteRepositories() []Repository {
	return append([]Repository(nil), r.remotes...)
}

// IsCache reports whether key names a cache repository.
func (r *Registry) IsCache(key string) bool {
	repo, ok := r.byKey[key]
	return ok && repo.Kind() == KindCache
}

// Close releases resources held by the registered repositories.
func (r *Registry) Close() error {
	var result *multierror.Error
	for _, repo := range r.byKey {
		if c, ok := repo.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing repository %q: %w", repo.Key(), err))
			}
		}
	}
	return result.ErrorOrNil()
}
