package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"

	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
)

// memStorage is a Storage keeping files and metadata documents in maps.
// Folders exist implicitly while they contain files.
type memStorage struct {
	mu    sync.Mutex
	files map[repository.RepoPath]string
	docs  map[repository.RepoPath]*maven.Metadata
	// failSet makes SetMetadataDocument fail for the given containers.
	failSet map[repository.RepoPath]bool
	writes  int
}

func newMemStorage() *memStorage {
	return &memStorage{
		files:   make(map[repository.RepoPath]string),
		docs:    make(map[repository.RepoPath]*maven.Metadata),
		failSet: make(map[repository.RepoPath]bool),
	}
}

func (s *memStorage) put(repoKey string, paths ...string) {
	for _, p := range paths {
		s.files[repository.NewRepoPath(repoKey, p)] = ""
	}
}

func (s *memStorage) putContent(p repository.RepoPath, content string) {
	s.files[p] = content
}

func (s *memStorage) remove(p repository.RepoPath) {
	for f := range s.files {
		if f == p || p.IsAncestorOf(f) {
			delete(s.files, f)
		}
	}
}

func (s *memStorage) isFolder(p repository.RepoPath) bool {
	for f := range s.files {
		if p.IsAncestorOf(f) {
			return true
		}
	}
	return false
}

func (s *memStorage) Info(_ context.Context, p repository.RepoPath) (repository.RepoResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if content, ok := s.files[p]; ok {
		return repository.RepoResource{RepoPath: p, Found: true, Size: int64(len(content))}, nil
	}
	if s.isFolder(p) {
		return repository.RepoResource{RepoPath: p, Found: true, Folder: true}, nil
	}
	return repository.NotFound(p), nil
}

func (s *memStorage) Open(_ context.Context, p repository.RepoPath) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.files[p]
	if !ok {
		return nil, repository.ErrResourceNotFound
	}
	return ioutil.NopCloser(strings.NewReader(content)), nil
}

func (s *memStorage) ListChildren(_ context.Context, p repository.RepoPath) ([]repository.RepoResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var children []repository.RepoResource
	for f := range s.files {
		if !p.IsAncestorOf(f) {
			continue
		}
		rest := strings.TrimPrefix(f.Path, p.Path)
		rest = strings.TrimPrefix(rest, "/")
		name := rest
		folder := false
		if i := strings.Index(rest, "/"); i >= 0 {
			name = rest[:i]
			folder = true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		children = append(children, repository.RepoResource{RepoPath: p.Child(name), Found: true, Folder: folder})
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("listing %s: %w", p, repository.ErrResourceNotFound)
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].RepoPath.Path < children[j].RepoPath.Path
	})
	return children, nil
}

func (s *memStorage) MetadataDocument(_ context.Context, container repository.RepoPath) (*maven.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, ok := s.docs[container]
	if !ok {
		return nil, nil
	}
	// hand out a copy, as decoding a stored document would
	doc, err := md.Encode()
	if err != nil {
		return nil, err
	}
	return maven.ParseMetadata(doc)
}

func (s *memStorage) SetMetadataDocument(_ context.Context, container repository.RepoPath, md *maven.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSet[container] {
		return errors.New("disk full")
	}
	s.writes++
	s.docs[container] = md
	return nil
}

func (s *memStorage) RemoveMetadataDocument(_ context.Context, container repository.RepoPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, container)
	return nil
}
