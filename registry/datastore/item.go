package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mavenhub/registry/registry/datastore/metrics"
	"github.com/mavenhub/registry/registry/datastore/models"
	"github.com/mavenhub/registry/registry/repository"
)

// Item types.
const (
	ItemTypeFile   = "file"
	ItemTypeFolder = "folder"
)

// ItemReader is the interface that defines read operations for an item store.
type ItemReader interface {
	FindByPath(ctx context.Context, p repository.RepoPath) (*models.Item, error)
	FindByRepository(ctx context.Context, repoKey string) (models.Items, error)
	Count(ctx context.Context) (int, error)
	Properties(ctx context.Context, i *models.Item) (models.Properties, error)
}

// ItemWriter is the interface that defines write operations for an item store.
type ItemWriter interface {
	CreateOrUpdate(ctx context.Context, i *models.Item) error
	Delete(ctx context.Context, p repository.RepoPath) (int64, error)
	SetProperty(ctx context.Context, i *models.Item, key, value string) error
	RemoveProperty(ctx context.Context, i *models.Item, key string) (int64, error)
}

// ItemStore is the interface that an item store should conform to.
type ItemStore interface {
	ItemReader
	ItemWriter
}

// itemStore is the concrete implementation of an ItemStore.
type itemStore struct {
	db Queryer
}

// NewItemStore builds a new item store.
func NewItemStore(db Queryer) *itemStore {
	return &itemStore{db: db}
}

const itemColumns = "node_id, repo, node_path, node_name, node_type, depth, size, sha256, created, modified, updated"

// ItemFromResource maps a stored resource onto its index entry.
func ItemFromResource(res repository.RepoResource) *models.Item {
	i := &models.Item{
		Repo:     res.RepoPath.RepoKey,
		Path:     res.RepoPath.Parent().Path,
		Name:     res.RepoPath.Name(),
		Type:     ItemTypeFile,
		Depth:    depthOf(res.RepoPath),
		Size:     res.Size,
		Modified: res.LastModified,
	}
	if res.Folder {
		i.Type = ItemTypeFolder
	}
	if res.Digest != "" {
		i.SHA256 = sql.NullString{String: res.Digest.Encoded(), Valid: true}
	}
	return i
}

// RepoPath returns the location of an indexed item.
func RepoPath(i *models.Item) repository.RepoPath {
	if i.Path == "" {
		return repository.NewRepoPath(i.Repo, i.Name)
	}
	return repository.NewRepoPath(i.Repo, i.Path+"/"+i.Name)
}

func depthOf(p repository.RepoPath) int {
	if p.IsRoot() {
		return 0
	}
	return strings.Count(p.Path, "/") + 1
}

func scanFullItem(row *sql.Row) (*models.Item, error) {
	i := new(models.Item)

	err := row.Scan(&i.ID, &i.Repo, &i.Path, &i.Name, &i.Type, &i.Depth, &i.Size, &i.SHA256, &i.Created, &i.Modified, &i.Updated)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		return nil, nil
	}

	return i, nil
}

func scanFullItems(rows *sql.Rows) (models.Items, error) {
	ii := make(models.Items, 0)
	defer rows.Close()

	for rows.Next() {
		i := new(models.Item)
		err := rows.Scan(&i.ID, &i.Repo, &i.Path, &i.Name, &i.Type, &i.Depth, &i.Size, &i.SHA256, &i.Created, &i.Modified, &i.Updated)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		ii = append(ii, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning items: %w", err)
	}

	return ii, nil
}

// FindByPath finds the item at p. It returns nil if the item is not indexed.
func (s *itemStore) FindByPath(ctx context.Context, p repository.RepoPath) (*models.Item, error) {
	defer metrics.InstrumentQuery(metrics.TableNodes, "item_find_by_path")()

	q := "SELECT " + itemColumns + " FROM nodes WHERE repo = $1 AND node_path = $2 AND node_name = $3"
	row := s.db.QueryRowContext(ctx, q, p.RepoKey, p.Parent().Path, p.Name())

	return scanFullItem(row)
}

// FindByRepository finds all items of a repository ordered by location.
func (s *itemStore) FindByRepository(ctx context.Context, repoKey string) (models.Items, error) {
	defer metrics.InstrumentQuery(metrics.TableNodes, "item_find_by_repository")()

	q := "SELECT " + itemColumns + " FROM nodes WHERE repo = $1 ORDER BY node_path, node_name"
	rows, err := s.db.QueryContext(ctx, q, repoKey)
	if err != nil {
		return nil, fmt.Errorf("finding items of %s: %w", repoKey, err)
	}

	return scanFullItems(rows)
}

// Count counts all items.
func (s *itemStore) Count(ctx context.Context) (int, error) {
	defer metrics.InstrumentQuery(metrics.TableNodes, "item_count")()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&count); err != nil {
		return count, fmt.Errorf("counting items: %w", err)
	}

	return count, nil
}

// CreateOrUpdate indexes i, refreshing the size, checksum and modification
// time of an existing entry at the same location. The ID and timestamps of
// i are set from the stored row.
func (s *itemStore) CreateOrUpdate(ctx context.Context, i *models.Item) error {
	defer metrics.InstrumentQuery(metrics.TableNodes, "item_create_or_update")()

	q := `INSERT INTO nodes (repo, node_path, node_name, node_type, depth, size, sha256, modified)
			VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (repo, node_path, node_name)
			DO UPDATE SET
				node_type = EXCLUDED.node_type,
				size = EXCLUDED.size,
				sha256 = EXCLUDED.sha256,
				modified = EXCLUDED.modified,
				updated = now()
		RETURNING node_id, created, modified, updated`

	var modified sql.NullTime
	if !i.Modified.IsZero() {
		modified = sql.NullTime{Time: i.Modified, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, q, i.Repo, i.Path, i.Name, i.Type, i.Depth, i.Size, i.SHA256, modified)
	if err := row.Scan(&i.ID, &i.Created, &i.Modified, &i.Updated); err != nil {
		return fmt.Errorf("indexing item: %w", err)
	}

	return nil
}

// Delete removes the item at p and every item below it. Deleting a
// repository root removes all items of the repository. It returns the
// number of removed items.
func (s *itemStore) Delete(ctx context.Context, p repository.RepoPath) (int64, error) {
	defer metrics.InstrumentQuery(metrics.TableNodes, "item_delete")()

	var (
		res sql.Result
		err error
	)
	if p.IsRoot() {
		res, err = s.db.ExecContext(ctx, "DELETE FROM nodes WHERE repo = $1", p.RepoKey)
	} else {
		q := `DELETE FROM nodes
			WHERE repo = $1
				AND ((node_path = $2 AND node_name = $3)
					OR node_path = $4
					OR node_path LIKE $5)`
		res, err = s.db.ExecContext(ctx, q, p.RepoKey, p.Parent().Path, p.Name(), p.Path, likePrefix(p.Path))
	}
	if err != nil {
		return 0, fmt.Errorf("deleting items at %s: %w", p, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting items at %s: %w", p, err)
	}

	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix matches every path below folder.
func likePrefix(folder string) string {
	return likeEscaper.Replace(folder) + "/%"
}

// Properties finds the properties of an item ordered by key and value.
func (s *itemStore) Properties(ctx context.Context, i *models.Item) (models.Properties, error) {
	defer metrics.InstrumentQuery(metrics.TableNodeProps, "item_properties")()

	q := "SELECT prop_id, node_id, prop_key, prop_value FROM node_props WHERE node_id = $1 ORDER BY prop_key, prop_value"
	rows, err := s.db.QueryContext(ctx, q, i.ID)
	if err != nil {
		return nil, fmt.Errorf("finding properties: %w", err)
	}
	defer rows.Close()

	pp := make(models.Properties, 0)
	for rows.Next() {
		p := new(models.Property)
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		pp = append(pp, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning properties: %w", err)
	}

	return pp, nil
}

// SetProperty attaches key=value to an item. Setting an existing pair is a
// no-op.
func (s *itemStore) SetProperty(ctx context.Context, i *models.Item, key, value string) error {
	defer metrics.InstrumentQuery(metrics.TableNodeProps, "item_set_property")()

	q := `INSERT INTO node_props (node_id, prop_key, prop_value) VALUES ($1, $2, $3)
		ON CONFLICT (node_id, prop_key, prop_value) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, q, i.ID, key, value); err != nil {
		return fmt.Errorf("setting property %q: %w", key, err)
	}

	return nil
}

// RemoveProperty removes every value of key from an item.
func (s *itemStore) RemoveProperty(ctx context.Context, i *models.Item, key string) (int64, error) {
	defer metrics.InstrumentQuery(metrics.TableNodeProps, "item_remove_property")()

	res, err := s.db.ExecContext(ctx, "DELETE FROM node_props WHERE node_id = $1 AND prop_key = $2", i.ID, key)
	if err != nil {
		return 0, fmt.Errorf("removing property %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("removing property %q: %w", key, err)
	}

	return n, nil
}
