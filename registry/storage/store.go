package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

const (
	// metadataDir is the reserved folder holding the metadata document of
	// its parent folder and the checksums of the items next to it.
	metadataDir = "_metadata"
	// checksumExt suffixes the checksum object of an item.
	checksumExt = ".sha256"
	// uploadsDir holds content being written before it is moved in place.
	uploadsDir = "/_uploads"
)

// Store lays repository items out on a storage driver. Items live at
// /<repoKey>/<path>. The metadata document of a folder and the sha256 of the
// items written through the store live in the reserved _metadata folder below
// it.
type Store struct {
	driver driver.StorageDriver
}

var _ repository.Storage = &Store{}

// NewStore returns a Store on top of d.
func NewStore(d driver.StorageDriver) *Store {
	return &Store{driver: d}
}

// Driver returns the underlying storage driver.
func (s *Store) Driver() driver.StorageDriver {
	return s.driver
}

func (s *Store) itemPath(p repository.RepoPath) string {
	if p.Name() == maven.MetadataFileName {
		return s.metadataPath(p.Parent())
	}
	if p.IsRoot() {
		return "/" + p.RepoKey
	}
	return "/" + p.RepoKey + "/" + p.Path
}

func (s *Store) metadataPath(container repository.RepoPath) string {
	dir := "/" + container.RepoKey
	if !container.IsRoot() {
		dir += "/" + container.Path
	}
	return dir + "/" + metadataDir + "/" + maven.MetadataFileName
}

// checksumPath returns where the digest of the item at p is kept, empty for
// repository roots and metadata documents.
func (s *Store) checksumPath(p repository.RepoPath) string {
	if p.IsRoot() || p.Name() == maven.MetadataFileName {
		return ""
	}
	return path.Join(path.Dir(s.itemPath(p)), metadataDir, p.Name()+checksumExt)
}

func isReserved(name string) bool {
	return name == metadataDir || "/"+name == uploadsDir
}

func isNotFound(err error) bool {
	return errors.As(err, &driver.PathNotFoundError{})
}

// Exists reports whether an item is stored at p.
func (s *Store) Exists(ctx context.Context, p repository.RepoPath) (bool, error) {
	res, err := s.Info(ctx, p)
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

// Info implements repository.Storage. Items written through WriteCached carry
// their digest.
func (s *Store) Info(ctx context.Context, p repository.RepoPath) (repository.RepoResource, error) {
	res, err := s.stat(ctx, p)
	if err != nil || !res.Found || res.Folder {
		return res, err
	}

	res.Digest, err = s.checksum(ctx, p)
	if err != nil {
		return repository.NotFound(p), err
	}
	return res, nil
}

func (s *Store) checksum(ctx context.Context, p repository.RepoPath) (digest.Digest, error) {
	cp := s.checksumPath(p)
	if cp == "" {
		return "", nil
	}

	content, err := s.driver.GetContent(ctx, cp)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading checksum of %s: %w", p, err)
	}

	dgst, err := digest.Parse(string(content))
	if err != nil {
		dcontext.GetLoggerWithField(ctx, "path", p.String()).WithError(err).Warn("ignoring invalid checksum")
		return "", nil
	}
	return dgst, nil
}

func (s *Store) stat(ctx context.Context, p repository.RepoPath) (repository.RepoResource, error) {
	fi, err := s.driver.Stat(ctx, s.itemPath(p))
	if err != nil {
		if isNotFound(err) {
			return repository.NotFound(p), nil
		}
		return repository.NotFound(p), fmt.Errorf("stat %s: %w", p, err)
	}

	return repository.RepoResource{
		RepoPath:     p,
		Found:        true,
		Folder:       fi.IsDir(),
		LastModified: fi.ModTime(),
		Size:         fi.Size(),
	}, nil
}

// Open implements repository.Storage.
func (s *Store) Open(ctx context.Context, p repository.RepoPath) (io.ReadCloser, error) {
	rc, err := s.driver.Reader(ctx, s.itemPath(p), 0)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("opening %s: %w", p, repository.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	return rc, nil
}

// WriteCached implements repository.Storage. Content is written to a
// temporary upload and moved to p once complete, so readers never see a
// partial item. A non zero lastModified is kept as the item modification
// time, failing to do so is only logged.
func (s *Store) WriteCached(ctx context.Context, p repository.RepoPath, r io.Reader, lastModified time.Time) (repository.RepoResource, error) {
	log := dcontext.GetLoggerWithField(ctx, "path", p.String())

	tmp := path.Join(uploadsDir, uuid.New().String())
	w, err := s.driver.Writer(ctx, tmp)
	if err != nil {
		return repository.RepoResource{}, fmt.Errorf("creating upload for %s: %w", p, err)
	}

	abort := func(cause error) (repository.RepoResource, error) {
		if err := w.Cancel(); err != nil {
			log.WithError(err).Warn("failed to cancel upload")
		}
		w.Close()
		if err := s.driver.Delete(ctx, tmp); err != nil && !isNotFound(err) {
			log.WithError(err).WithField("upload", tmp).Warn("failed to remove upload")
		}
		return repository.RepoResource{}, cause
	}

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(w, digester.Hash()), &contextReader{ctx: ctx, r: r})
	if err != nil {
		return abort(fmt.Errorf("writing %s: %w", p, err))
	}
	if err := w.Commit(); err != nil {
		return abort(fmt.Errorf("committing %s: %w", p, err))
	}
	if err := w.Close(); err != nil {
		return abort(fmt.Errorf("closing %s: %w", p, err))
	}

	dst := s.itemPath(p)
	if err := s.driver.Move(ctx, tmp, dst); err != nil {
		return abort(fmt.Errorf("moving %s in place: %w", p, err))
	}

	if !lastModified.IsZero() {
		if err := s.driver.Chtimes(ctx, dst, lastModified); err != nil {
			log.WithError(err).Warn("failed to preserve last modified time")
		}
	}

	dgst := digester.Digest()
	if cp := s.checksumPath(p); cp != "" {
		if err := s.driver.PutContent(ctx, cp, []byte(dgst.String())); err != nil {
			log.WithError(err).Warn("failed to store checksum")
			// a checksum of the replaced content must not outlive it
			if err := s.driver.Delete(ctx, cp); err != nil && !isNotFound(err) {
				log.WithError(err).Warn("failed to remove stale checksum")
			}
		}
	}

	res, err := s.stat(ctx, p)
	if err != nil {
		return repository.RepoResource{}, err
	}
	res.Size = n
	res.Digest = dgst

	log.WithFields(map[string]interface{}{"size": n, "digest": res.Digest}).Debug("item stored")

	return res, nil
}

// Delete removes the item at p and its checksum. Deleting a folder removes
// everything below it, metadata included.
func (s *Store) Delete(ctx context.Context, p repository.RepoPath) error {
	if err := s.driver.Delete(ctx, s.itemPath(p)); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("deleting %s: %w", p, repository.ErrResourceNotFound)
		}
		return fmt.Errorf("deleting %s: %w", p, err)
	}

	if cp := s.checksumPath(p); cp != "" {
		if err := s.driver.Delete(ctx, cp); err != nil && !isNotFound(err) {
			return fmt.Errorf("deleting checksum of %s: %w", p, err)
		}
	}
	return nil
}

// ListChildren returns the items directly below folder p, without reserved
// entries. The result is sorted by name.
func (s *Store) ListChildren(ctx context.Context, p repository.RepoPath) ([]repository.RepoResource, error) {
	entries, err := s.driver.List(ctx, s.itemPath(p))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("listing %s: %w", p, repository.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}

	children := make([]repository.RepoResource, 0, len(entries))
	for _, entry := range entries {
		name := path.Base(entry)
		if isReserved(name) {
			continue
		}
		res, err := s.stat(ctx, p.Child(name))
		if err != nil {
			return nil, err
		}
		// removed since listed
		if !res.Found {
			continue
		}
		children = append(children, res)
	}

	return children, nil
}

// Walk calls fn for every item below root, skipping reserved folders.
// Returning driver.ErrSkipDir for a folder skips its content.
func (s *Store) Walk(ctx context.Context, root repository.RepoPath, fn func(repository.RepoResource) error) error {
	base := "/" + root.RepoKey

	err := s.driver.Walk(ctx, s.itemPath(root), func(fi driver.FileInfo) error {
		name := path.Base(fi.Path())
		if isReserved(name) {
			if fi.IsDir() {
				return driver.ErrSkipDir
			}
			return nil
		}

		return fn(repository.RepoResource{
			RepoPath:     repository.NewRepoPath(root.RepoKey, strings.TrimPrefix(fi.Path(), base)),
			Found:        true,
			Folder:       fi.IsDir(),
			LastModified: fi.ModTime(),
			Size:         fi.Size(),
		})
	})
	if isNotFound(err) {
		return fmt.Errorf("walking %s: %w", root, repository.ErrResourceNotFound)
	}
	return err
}

// MetadataDocument returns the metadata document of folder container, nil
// if there is none.
func (s *Store) MetadataDocument(ctx context.Context, container repository.RepoPath) (*maven.Metadata, error) {
	content, err := s.driver.GetContent(ctx, s.metadataPath(container))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metadata of %s: %w", container, err)
	}

	md, err := maven.ParseMetadata(string(content))
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", container, err)
	}
	return md, nil
}

// SetMetadataDocument replaces the metadata document of folder container.
func (s *Store) SetMetadataDocument(ctx context.Context, container repository.RepoPath, md *maven.Metadata) error {
	doc, err := md.Encode()
	if err != nil {
		return fmt.Errorf("encoding metadata of %s: %w", container, err)
	}
	if err := s.driver.PutContent(ctx, s.metadataPath(container), []byte(doc)); err != nil {
		return fmt.Errorf("writing metadata of %s: %w", container, err)
	}
	return nil
}

// RemoveMetadataDocument removes the metadata document of folder container,
// if any. Checksums kept next to it stay.
func (s *Store) RemoveMetadataDocument(ctx context.Context, container repository.RepoPath) error {
	err := s.driver.Delete(ctx, s.metadataPath(container))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("removing metadata of %s: %w", container, err)
	}
	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
