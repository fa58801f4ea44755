package repository

import (
	"context"
	"io"
)

// LocalRepo is a repository hosting deployed items.
type LocalRepo struct {
	key     string
	storage Storage
	repoOptions
}

// NewLocalRepo returns a local repository backed by storage.
func NewLocalRepo(key string, storage Storage, opts ...Option) *LocalRepo {
	return &LocalRepo{key: key, storage: storage, repoOptions: newOptions(opts)}
}

// Key implements Repository.
func (r *LocalRepo) Key() string { return r.key }

// Kind implements Repository.
func (r *LocalRepo) Kind() Kind { return KindLocal }

// IsCache implements Repository.
func (r *LocalRepo) IsCache() bool { return false }

// HandleReleases implements Repository.
func (r *LocalRepo) HandleReleases() bool { return r.releases }

// HandleSnapshots implements Repository.
func (r *LocalRepo) HandleSnapshots() bool { return r.snapshots }

// Info implements Repository.
func (r *LocalRepo) Info(ctx context.Context, path string) (RepoResource, error) {
	return r.storage.Info(ctx, NewRepoPath(r.key, path))
}

// Open implements Repository.
func (r *LocalRepo) Open(ctx context.Context, res RepoResource) (io.ReadCloser, error) {
	return openStored(ctx, r.storage, r.repoOptions, res)
}

func openStored(ctx context.Context, storage Storage, o repoOptions, res RepoResource) (io.ReadCloser, error) {
	if !res.Found || res.Folder {
		return nil, ErrResourceNotFound
	}

	rc, err := storage.Open(ctx, res.RepoPath)
	if err != nil {
		return nil, err
	}

	if o.tracker != nil {
		if err := o.tracker.ItemDownloaded(ctx, res.RepoPath, timeNow()); err != nil {
			o.logger.WithError(err).WithField("path", res.RepoPath.String()).Warn("failed to record download")
		}
	}

	return rc, nil
}
