package repository

import (
	"context"
	"io"
	"time"
)

// CacheRepo holds the items fetched through a remote repository.
type CacheRepo struct {
	key     string
	storage Storage
	repoOptions
}

// NewCacheRepo returns a cache repository backed by storage.
func NewCacheRepo(key string, storage Storage, opts ...Option) *CacheRepo {
	return &CacheRepo{key: key, storage: storage, repoOptions: newOptions(opts)}
}

// Key implements Repository.
func (r *CacheRepo) Key() string { return r.key }

// Kind implements Repository.
func (r *CacheRepo) Kind() Kind { return KindCache }

// IsCache implements Repository.
func (r *CacheRepo) IsCache() bool { return true }

// HandleReleases implements Repository.
func (r *CacheRepo) HandleReleases() bool { return r.releases }

// HandleSnapshots implements Repository.
func (r *CacheRepo) HandleSnapshots() bool { return r.snapshots }

// Info implements Repository.
func (r *CacheRepo) Info(ctx context.Context, path string) (RepoResource, error) {
	return r.storage.Info(ctx, NewRepoPath(r.key, path))
}

// Open implements Repository.
func (r *CacheRepo) Open(ctx context.Context, res RepoResource) (io.ReadCloser, error) {
	return openStored(ctx, r.storage, r.repoOptions, res)
}

// store writes content fetched from upstream at path.
func (r *CacheRepo) store(ctx context.Context, path string, content io.Reader, lastModified time.Time) (RepoResource, error) {
	res, err := r.storage.WriteCached(ctx, NewRepoPath(r.key, path), content, lastModified)
	if err != nil {
		return RepoResource{}, err
	}

	if r.tracker != nil {
		if err := r.tracker.ItemStored(ctx, res); err != nil {
			r.logger.WithError(err).WithField("path", res.RepoPath.String()).Warn("failed to index cached item")
		}
	}

	return res, nil
}
