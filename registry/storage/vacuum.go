package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/metadata"
	"github.com/mavenhub/registry/registry/repository"
)

// Indexer forgets deleted items.
type Indexer interface {
	DeleteItem(ctx context.Context, p repository.RepoPath) error
}

// Vacuum removes items from storage, keeping the metadata of the enclosing
// folders and the item index up to date.
type Vacuum struct {
	store   *Store
	calc    *metadata.Calculator
	indexer Indexer
}

// NewVacuum creates a new Vacuum. indexer may be nil.
func NewVacuum(store *Store, calc *metadata.Calculator, indexer Indexer) *Vacuum {
	return &Vacuum{store: store, calc: calc, indexer: indexer}
}

// RemoveItem removes the item at p, file or folder, and recalculates the
// metadata of its parent.
func (v *Vacuum) RemoveItem(ctx context.Context, p repository.RepoPath) error {
	session := v.calc.NewSession()
	defer session.Flush(ctx)

	return v.remove(ctx, session, p)
}

// RemoveItems removes paths within one metadata session, so every affected
// document is written once. Failures are collected and do not stop the
// removal of the remaining items.
func (v *Vacuum) RemoveItems(ctx context.Context, paths []repository.RepoPath) (int, error) {
	start := time.Now()
	session := v.calc.NewSession()

	var deleted int
	var errs *multierror.Error
	for _, p := range paths {
		if err := v.remove(ctx, session, p); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		deleted++
	}
	session.Flush(ctx)

	l := dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
		"count":      deleted,
		"total":      len(paths),
		"duration_s": time.Since(start).Seconds(),
	})
	if deleted < len(paths) {
		l.Warn("items partially deleted")
	} else {
		l.Info("items deleted")
	}

	return deleted, errs.ErrorOrNil()
}

func (v *Vacuum) remove(ctx context.Context, session *metadata.Session, p repository.RepoPath) error {
	if p.IsRoot() {
		return fmt.Errorf("refusing to delete repository root %s", p)
	}

	res, err := v.store.Info(ctx, p)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("deleting %s: %w", p, repository.ErrResourceNotFound)
	}

	log := dcontext.GetLoggerWithField(ctx, "path", p.String())
	log.Info("deleting item")

	if err := session.RecordDeletion(ctx, metadata.DeletedItem{Path: p, Folder: res.Folder}); err != nil {
		log.WithError(err).Warn("failed to record deletion for metadata recalculation")
	}

	if err := v.store.Delete(ctx, p); err != nil {
		return err
	}

	if v.indexer != nil {
		if err := v.indexer.DeleteItem(ctx, p); err != nil && !errors.Is(err, repository.ErrResourceNotFound) {
			log.WithError(err).Warn("failed to remove item from index")
		}
	}

	return nil
}
