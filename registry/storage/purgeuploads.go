package storage

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mavenhub/registry/registry/storage/driver"
	"github.com/sirupsen/logrus"
)

// PurgeUploads deletes temporary uploads last modified before olderThan.
// Uploads are left behind when the process dies while storing an item. The
// deleted paths and the errors met are returned.
func PurgeUploads(ctx context.Context, d driver.StorageDriver, olderThan time.Time, actuallyDelete bool) ([]string, error) {
	logrus.Infof("PurgeUploads starting: olderThan=%s, actuallyDelete=%t", olderThan, actuallyDelete)

	entries, err := d.List(ctx, uploadsDir)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var deleted []string
	var errs *multierror.Error
	for _, entry := range entries {
		// not created by WriteCached, cannot reliably delete
		if _, err := uuid.Parse(path.Base(entry)); err != nil {
			continue
		}

		fi, err := d.Stat(ctx, entry)
		if err != nil {
			if !isNotFound(err) {
				errs = multierror.Append(errs, err)
			}
			continue
		}
		if !fi.ModTime().Before(olderThan) {
			continue
		}

		logrus.Infof("Upload %s has older date (%s) than purge date (%s). Removing upload.", entry, fi.ModTime(), olderThan)
		if actuallyDelete {
			if err := d.Delete(ctx, entry); err != nil && !isNotFound(err) {
				errs = multierror.Append(errs, err)
				continue
			}
		}
		deleted = append(deleted, entry)
	}

	logrus.Infof("Purge uploads finished. Num deleted=%d, num errors=%d", len(deleted), len(errs.WrappedErrors()))
	return deleted, errs.ErrorOrNil()
}
