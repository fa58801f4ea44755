package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mavenhub/registry/registry/datastore/metrics"
	"github.com/mavenhub/registry/registry/datastore/models"
	"github.com/mavenhub/registry/registry/repository"
)

// DownloadStore is the interface that a download statistics store should
// conform to.
type DownloadStore interface {
	FindByItem(ctx context.Context, i *models.Item) (*models.DownloadStat, error)
	RecordDownload(ctx context.Context, p repository.RepoPath, at time.Time) error
	FindNotDownloadedSince(ctx context.Context, repoKey string, since time.Time) ([]repository.RepoPath, error)
}

// downloadStore is the concrete implementation of a DownloadStore.
type downloadStore struct {
	db Queryer
}

// NewDownloadStore builds a new download statistics store.
func NewDownloadStore(db Queryer) *downloadStore {
	return &downloadStore{db: db}
}

// FindByItem finds the download statistics of an item. It returns nil if
// the item was never downloaded.
func (s *downloadStore) FindByItem(ctx context.Context, i *models.Item) (*models.DownloadStat, error) {
	defer metrics.InstrumentQuery(metrics.TableStats, "download_find_by_item")()

	q := "SELECT node_id, download_count, last_downloaded FROM stats WHERE node_id = $1"

	st := new(models.DownloadStat)
	if err := s.db.QueryRowContext(ctx, q, i.ID).Scan(&st.ItemID, &st.DownloadCount, &st.LastDownloaded); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("scanning download stats: %w", err)
		}
		return nil, nil
	}

	return st, nil
}

// RecordDownload counts a download of the item at p. The last download time
// never moves backwards. It fails with ErrItemNotFound when p is not
// indexed.
func (s *downloadStore) RecordDownload(ctx context.Context, p repository.RepoPath, at time.Time) error {
	defer metrics.InstrumentQuery(metrics.TableStats, "download_record")()

	q := `INSERT INTO stats (node_id, download_count, last_downloaded)
			SELECT node_id, 1, $4 FROM nodes
			WHERE repo = $1 AND node_path = $2 AND node_name = $3
		ON CONFLICT (node_id)
			DO UPDATE SET
				download_count = stats.download_count + 1,
				last_downloaded = GREATEST(stats.last_downloaded, EXCLUDED.last_downloaded)`

	res, err := s.db.ExecContext(ctx, q, p.RepoKey, p.Parent().Path, p.Name(), at)
	if err != nil {
		return fmt.Errorf("recording download of %s: %w", p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording download of %s: %w", p, err)
	}
	if n == 0 {
		return fmt.Errorf("recording download of %s: %w", p, ErrItemNotFound)
	}

	return nil
}

// FindNotDownloadedSince finds the files of a repository last downloaded
// before since. Files never downloaded qualify when they were indexed before
// since.
func (s *downloadStore) FindNotDownloadedSince(ctx context.Context, repoKey string, since time.Time) ([]repository.RepoPath, error) {
	defer metrics.InstrumentQuery(metrics.TableStats, "download_find_not_downloaded_since")()

	q := `SELECT n.node_path, n.node_name
		FROM nodes n
		LEFT JOIN stats s ON s.node_id = n.node_id
		WHERE n.repo = $1
			AND n.node_type = $2
			AND ((s.node_id IS NULL AND n.created < $3) OR s.last_downloaded < $3)
		ORDER BY n.node_path, n.node_name`

	rows, err := s.db.QueryContext(ctx, q, repoKey, ItemTypeFile, since)
	if err != nil {
		return nil, fmt.Errorf("finding unused items of %s: %w", repoKey, err)
	}
	defer rows.Close()

	var paths []repository.RepoPath
	for rows.Next() {
		i := &models.Item{Repo: repoKey}
		if err := rows.Scan(&i.Path, &i.Name); err != nil {
			return nil, fmt.Errorf("scanning unused item: %w", err)
		}
		paths = append(paths, RepoPath(i))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning unused items: %w", err)
	}

	return paths, nil
}
