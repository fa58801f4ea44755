package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mavenhub/registry/registry/repository"
	"github.com/sirupsen/logrus"
)

// Walker enumerates the items stored below a folder.
type Walker interface {
	Walk(ctx context.Context, root repository.RepoPath, fn func(repository.RepoResource) error) error
}

// Importer populates the item index from the content of storage. It is
// meant for an initial indexing of repositories served before the index
// database was enabled.
type Importer struct {
	walker Walker
	items  ItemStore
	logger logrus.FieldLogger
}

// NewImporter creates a new Importer.
func NewImporter(db Queryer, walker Walker, logger logrus.FieldLogger) *Importer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Importer{walker: walker, items: NewItemStore(db), logger: logger}
}

// ErrNotEmpty is returned when importing into an index already holding items
// of a repository.
var ErrNotEmpty = errors.New("repository already indexed")

// Import indexes every file of the given repositories. Repositories already
// holding indexed items are refused unless force is set, in which case
// existing entries are refreshed.
func (imp *Importer) Import(ctx context.Context, force bool, repoKeys ...string) (int, error) {
	start := time.Now()
	imp.logger.Info("starting item import")

	var total int
	for _, key := range repoKeys {
		repoStart := time.Now()
		log := imp.logger.WithField("repository", key)

		if !force {
			existing, err := imp.items.FindByRepository(ctx, key)
			if err != nil {
				return total, err
			}
			if len(existing) > 0 {
				return total, fmt.Errorf("importing %s: %w", key, ErrNotEmpty)
			}
		}

		log.Info("importing repository")
		var count int
		err := imp.walker.Walk(ctx, repository.NewRepoPath(key, ""), func(res repository.RepoResource) error {
			if res.Folder {
				return nil
			}
			if err := imp.items.CreateOrUpdate(ctx, ItemFromResource(res)); err != nil {
				return err
			}
			count++
			return nil
		})
		total += count
		if err != nil && !errors.Is(err, repository.ErrResourceNotFound) {
			log.WithError(err).Error("error importing repository")
			return total, fmt.Errorf("importing %s: %w", key, err)
		}

		log.WithFields(logrus.Fields{
			"items":      count,
			"duration_s": time.Since(repoStart).Seconds(),
		}).Info("repository import complete")
	}

	imp.logger.WithFields(logrus.Fields{
		"items":      total,
		"duration_s": time.Since(start).Seconds(),
	}).Info("item import complete")

	return total, nil
}
