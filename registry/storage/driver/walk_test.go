package driver

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// treeFileSystem serves a fixed tree. Entries ending with a slash are
// directories.
type treeFileSystem struct {
	StorageDriver
	entries    []string
	statErrors map[string]error
}

func (fs *treeFileSystem) List(_ context.Context, dir string) ([]string, error) {
	var children []string
	for _, e := range fs.entries {
		p := strings.TrimSuffix(e, "/")
		if path.Dir(p) == dir {
			children = append(children, p)
		}
	}
	return children, nil
}

func (fs *treeFileSystem) Stat(_ context.Context, p string) (FileInfo, error) {
	if err, ok := fs.statErrors[p]; ok {
		return nil, err
	}
	for _, e := range fs.entries {
		if strings.TrimSuffix(e, "/") == p {
			return FileInfoInternal{FileInfoFields{Path: p, IsDir: strings.HasSuffix(e, "/")}}, nil
		}
	}
	return nil, PathNotFoundError{Path: p}
}

func newTree() *treeFileSystem {
	return &treeFileSystem{
		entries: []string{
			"/org/",
			"/org/acme/",
			"/org/acme/lib/",
			"/org/acme/lib/1.0/",
			"/org/acme/lib/1.0/lib-1.0.jar",
			"/org/acme/lib/1.0/lib-1.0.pom",
			"/org/acme/tool/",
			"/org/acme/tool/tool.jar",
		},
	}
}

func TestWalkFallback(t *testing.T) {
	var visited []string
	err := WalkFallback(context.Background(), newTree(), "/", func(fi FileInfo) error {
		visited = append(visited, fi.Path())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"/org",
		"/org/acme",
		"/org/acme/lib",
		"/org/acme/lib/1.0",
		"/org/acme/lib/1.0/lib-1.0.jar",
		"/org/acme/lib/1.0/lib-1.0.pom",
		"/org/acme/tool",
		"/org/acme/tool/tool.jar",
	}, visited)
}

func TestWalkFallback_SkipDir(t *testing.T) {
	var visited []string
	err := WalkFallback(context.Background(), newTree(), "/", func(fi FileInfo) error {
		visited = append(visited, fi.Path())
		if fi.Path() == "/org/acme/lib" {
			return ErrSkipDir
		}
		return nil
	})
	require.NoError(t, err)
	require.NotContains(t, visited, "/org/acme/lib/1.0")
	require.Contains(t, visited, "/org/acme/tool/tool.jar")
}

func TestWalkFallback_FileRemoved(t *testing.T) {
	fs := newTree()
	fs.statErrors = map[string]error{"/org/acme/tool": PathNotFoundError{Path: "/org/acme/tool"}}

	var visited []string
	err := WalkFallback(context.Background(), fs, "/", func(fi FileInfo) error {
		visited = append(visited, fi.Path())
		return nil
	})
	require.NoError(t, err)
	require.NotContains(t, visited, "/org/acme/tool")
	require.NotContains(t, visited, "/org/acme/tool/tool.jar")
}

var errBadFile = errors.New("test error: this file is bad")

func TestWalkFallback_Error(t *testing.T) {
	fs := newTree()
	fs.statErrors = map[string]error{"/org/acme/lib/1.0/lib-1.0.jar": errBadFile}

	err := WalkFallback(context.Background(), fs, "/", func(FileInfo) error { return nil })
	require.True(t, errors.Is(err, errBadFile))
}

func TestWalkFallbackParallel(t *testing.T) {
	var (
		mu      sync.Mutex
		visited []string
	)
	err := WalkFallbackParallel(context.Background(), newTree(), "/", func(fi FileInfo) error {
		mu.Lock()
		defer mu.Unlock()
		visited = append(visited, fi.Path())
		return nil
	})
	require.NoError(t, err)

	sort.Strings(visited)
	require.Len(t, visited, 8)
	require.Equal(t, "/org", visited[0])
}

func TestWalkFallbackParallel_Error(t *testing.T) {
	fs := newTree()
	fs.statErrors = map[string]error{"/org/acme/lib/1.0/lib-1.0.pom": errBadFile}

	err := WalkFallbackParallel(context.Background(), fs, "/", func(FileInfo) error { return nil })
	require.Error(t, err)
	require.True(t, errors.Is(err, errBadFile))
}
