package repository

import (
	"context"
	"io"
)

// RemoteRepo proxies an upstream repository, optionally storing fetched
// items in a cache repository.
type RemoteRepo struct {
	key      string
	upstream Upstream
	repoOptions
}

// NewRemoteRepo returns a remote repository fetching from upstream.
func NewRemoteRepo(key string, upstream Upstream, opts ...Option) *RemoteRepo {
	return &RemoteRepo{key: key, upstream: upstream, repoOptions: newOptions(opts)}
}

// Key implements Repository.
func (r *RemoteRepo) Key() string { return r.key }

// Kind implements Repository.
func (r *RemoteRepo) Kind() Kind { return KindRemote }

// IsCache implements Repository.
func (r *RemoteRepo) IsCache() bool { return false }

// HandleReleases implements Repository.
func (r *RemoteRepo) HandleReleases() bool { return r.releases }

// HandleSnapshots implements Repository.
func (r *RemoteRepo) HandleSnapshots() bool { return r.snapshots }

// Cache returns the repository storing fetched items, nil if items are not
// stored locally.
func (r *RemoteRepo) Cache() *CacheRepo { return r.cache }

// Info implements Repository. Results are remembered in the info cache, if
// configured.
func (r *RemoteRepo) Info(ctx context.Context, path string) (RepoResource, error) {
	p := NewRepoPath(r.key, path)
	log := r.logger.WithField("path", p.String())

	if r.infoCache != nil {
		res, ok, err := r.infoCache.Get(ctx, p)
		if err != nil {
			log.WithError(err).Warn("failed to read remote info cache")
		} else if ok {
			return res, nil
		}
	}

	info, err := r.upstream.Head(ctx, p.Path)
	if err != nil {
		return NotFound(p), err
	}

	res := RepoResource{
		RepoPath:     p,
		Found:        info.Found,
		LastModified: info.LastModified,
		Size:         info.Size,
		MetadataOnly: true,
	}

	if r.infoCache != nil {
		ttl := r.retrievalTTL
		if !res.Found {
			ttl = r.missedTTL
		}
		if ttl > 0 {
			if err := r.infoCache.Set(ctx, res, ttl); err != nil {
				log.WithError(err).Warn("failed to write remote info cache")
			}
		}
	}

	return res, nil
}

// Open implements Repository. When items are stored locally the content is
// first written to the cache repository and served from there.
func (r *RemoteRepo) Open(ctx context.Context, res RepoResource) (io.ReadCloser, error) {
	if !res.Found {
		return nil, ErrResourceNotFound
	}

	body, info, err := r.upstream.Get(ctx, res.RepoPath.Path)
	if err != nil {
		return nil, err
	}
	if r.cache == nil {
		return body, nil
	}
	defer body.Close()

	lastModified := info.LastModified
	if lastModified.IsZero() {
		lastModified = res.LastModified
	}

	cached, err := r.cache.store(ctx, res.RepoPath.Path, body, lastModified)
	if err != nil {
		return nil, err
	}

	return r.cache.Open(ctx, cached)
}

// Close releases the upstream client.
func (r *RemoteRepo) Close() error {
	if c, ok := r.upstream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
