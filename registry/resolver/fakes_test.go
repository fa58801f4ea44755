package resolver

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"github.com/mavenhub/registry/registry/repository"
)

type fakeItem struct {
	content      string
	lastModified time.Time
}

// fakeRepo is a repository holding items in a map.
type fakeRepo struct {
	key       string
	kind      repository.Kind
	releases  bool
	snapshots bool
	items     map[string]fakeItem
	infoErr   error
	openErr   error
	readErr   error
	infoCalls int
}

func newFakeRepo(key string, kind repository.Kind) *fakeRepo {
	return &fakeRepo{key: key, kind: kind, releases: true, snapshots: true, items: make(map[string]fakeItem)}
}

func (r *fakeRepo) with(path, content string, lastModified time.Time) *fakeRepo {
	r.items[path] = fakeItem{content: content, lastModified: lastModified}
	return r
}

func (r *fakeRepo) Key() string { return r.key }
func (r *fakeRepo) Kind() repository.Kind { return r.kind }
func (r *fakeRepo) IsCache() bool { return r.kind == repository.KindCache }
func (r *fakeRepo) HandleReleases() bool { return r.releases }
func (r *fakeRepo) HandleSnapshots() bool { return r.snapshots }

func (r *fakeRepo) Info(_ context.Context, path string) (repository.RepoResource, error) {
	r.infoCalls++
	p := repository.NewRepoPath(r.key, path)
	if r.infoErr != nil {
		return repository.NotFound(p), r.infoErr
	}
	item, ok := r.items[path]
	if !ok {
		return repository.NotFound(p), nil
	}
	return repository.RepoResource{
		RepoPath:     p,
		Found:        true,
		LastModified: item.lastModified,
		Size:         int64(len(item.content)),
	}, nil
}

func (r *fakeRepo) Open(_ context.Context, res repository.RepoResource) (io.ReadCloser, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	item, ok := r.items[res.RepoPath.Path]
	if !ok {
		return nil, repository.ErrResourceNotFound
	}
	if r.readErr != nil {
		return ioutil.NopCloser(io.MultiReader(strings.NewReader(item.content), errReader{r.readErr})), nil
	}
	return ioutil.NopCloser(strings.NewReader(item.content)), nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

var errBoom = errors.New("boom")
