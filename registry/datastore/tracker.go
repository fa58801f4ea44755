package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mavenhub/registry/registry/repository"
)

// Tracker keeps the item index and download statistics in step with storage.
type Tracker struct {
	items     ItemStore
	downloads DownloadStore
	storage   repository.Storage
}

// NewTracker returns a Tracker on db. Downloads of items missing from the
// index get them indexed from storage first; storage may be nil to skip
// this.
func NewTracker(db Queryer, storage repository.Storage) *Tracker {
	return &Tracker{
		items:     NewItemStore(db),
		downloads: NewDownloadStore(db),
		storage:   storage,
	}
}

// ItemStored indexes a newly stored item.
func (t *Tracker) ItemStored(ctx context.Context, res repository.RepoResource) error {
	if !res.Found {
		return fmt.Errorf("indexing %s: %w", res.RepoPath, repository.ErrResourceNotFound)
	}
	return t.items.CreateOrUpdate(ctx, ItemFromResource(res))
}

// ItemDownloaded records a download of the item at p.
func (t *Tracker) ItemDownloaded(ctx context.Context, p repository.RepoPath, at time.Time) error {
	err := t.downloads.RecordDownload(ctx, p, at)
	if err == nil || !errors.Is(err, ErrItemNotFound) || t.storage == nil {
		return err
	}

	res, err := t.storage.Info(ctx, p)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", p, err)
	}
	if err := t.ItemStored(ctx, res); err != nil {
		return err
	}
	return t.downloads.RecordDownload(ctx, p, at)
}

// DeleteItem forgets the item at p and everything below it.
func (t *Tracker) DeleteItem(ctx context.Context, p repository.RepoPath) error {
	_, err := t.items.Delete(ctx, p)
	return err
}

// FindNotDownloadedSince finds the files of repoKey unused since the given
// time.
func (t *Tracker) FindNotDownloadedSince(ctx context.Context, repoKey string, since time.Time) ([]repository.RepoPath, error) {
	return t.downloads.FindNotDownloadedSince(ctx, repoKey, since)
}
