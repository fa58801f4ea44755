// Package metadata keeps maven-metadata.xml documents consistent with the
// content of the folders they describe.
package metadata

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

const componentKey = "component"

// Storage is the item store holding metadata documents.
type Storage interface {
	Info(ctx context.Context, p repository.RepoPath) (repository.RepoResource, error)
	Open(ctx context.Context, p repository.RepoPath) (io.ReadCloser, error)
	ListChildren(ctx context.Context, p repository.RepoPath) ([]repository.RepoResource, error)
	// MetadataDocument returns nil when container has no document.
	MetadataDocument(ctx context.Context, container repository.RepoPath) (*maven.Metadata, error)
	SetMetadataDocument(ctx context.Context, container repository.RepoPath, md *maven.Metadata) error
	RemoveMetadataDocument(ctx context.Context, container repository.RepoPath) error
}

// Calculator recalculates metadata documents.
type Calculator struct {
	storage    Storage
	comparator maven.VersionComparator
	isCache    func(repoKey string) bool
	clock      clock.Clock
	locker     *pathLocker
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithComparator sets the version ordering. Defaults to
// maven.CompareVersionNames.
func WithComparator(cmp maven.VersionComparator) Option {
	return func(c *Calculator) {
		c.comparator = cmp
	}
}

// WithCacheResolver tells which repositories are caches. Plugin lists of
// cache repositories are left untouched.
func WithCacheResolver(isCache func(repoKey string) bool) Option {
	return func(c *Calculator) {
		c.isCache = isCache
	}
}

// WithClock sets the clock used for lastUpdated values.
func WithClock(clk clock.Clock) Option {
	return func(c *Calculator) {
		c.clock = clk
	}
}

// NewCalculator returns a Calculator operating on storage.
func NewCalculator(storage Storage, opts ...Option) *Calculator {
	c := &Calculator{
		storage: storage,
		locker:  newPathLocker(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.comparator == nil {
		c.comparator = maven.VersionComparatorFunc(maven.CompareVersionNames)
	}
	if c.isCache == nil {
		c.isCache = func(string) bool { return false }
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	return c
}

// NewSession starts a unit of work collecting deletions. Sessions must not
// be shared between concurrent units of work.
func (c *Calculator) NewSession() *Session {
	return &Session{calc: c}
}

func (c *Calculator) logAndReportErr(ctx context.Context, err error, p repository.RepoPath) {
	errortracking.Capture(
		err,
		errortracking.WithContext(ctx),
		errortracking.WithField(componentKey, "metadata"),
		errortracking.WithField("path", p.String()),
	)
	dcontext.GetLogger(ctx).WithError(err).WithField("path", p.String()).Error("failed to recalculate metadata")
}

// setVersions sorts versions and points latest and release at the newest
// version and the newest non snapshot version.
func (c *Calculator) setVersions(v *maven.Versioning, versions []string) {
	maven.SortVersions(versions, c.comparator)
	v.Versions = versions
	if len(versions) == 0 {
		return
	}

	v.Latest = versions[len(versions)-1]
	v.Release = ""
	for i := len(versions) - 1; i >= 0; i-- {
		if !maven.IsSnapshotVersion(versions[i]) {
			v.Release = versions[i]
			break
		}
	}
}

func (c *Calculator) now() string {
	return maven.LastUpdated(c.clock.Now())
}
