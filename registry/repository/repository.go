package repository

import (
	"context"
	"errors"
	"io"
	"time"
)

// Kind classifies repositories.
type Kind int

const (
	// KindLocal repositories host deployed items.
	KindLocal Kind = iota
	// KindCache repositories hold items fetched through a remote repository.
	KindCache
	// KindRemote repositories proxy an upstream server.
	KindRemote
	// KindVirtual repositories aggregate other repositories.
	KindVirtual
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindCache:
		return "cache"
	case KindRemote:
		return "remote"
	case KindVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// ErrResourceNotFound is returned when opening a resource which was not found.
var ErrResourceNotFound = errors.New("resource not found")

// Repository is a named source of items.
type Repository interface {
	Key() string
	Kind() Kind
	IsCache() bool
	HandleReleases() bool
	HandleSnapshots() bool
	// Info looks up the item at path. Lookups which complete without
	// finding the item return an unfound resource and a nil error.
	Info(ctx context.Context, path string) (RepoResource, error)
	// Open returns the content of a resource previously returned by Info.
	Open(ctx context.Context, res RepoResource) (io.ReadCloser, error)
}

// Storage is the persistent item store backing local and cache
// repositories.
type Storage interface {
	Info(ctx context.Context, p RepoPath) (RepoResource, error)
	Open(ctx context.Context, p RepoPath) (io.ReadCloser, error)
	// WriteCached stores r at p, exposing it only once fully written and
	// preserving lastModified as the item modification time.
	WriteCached(ctx context.Context, p RepoPath, r io.Reader, lastModified time.Time) (RepoResource, error)
}

// Tracker records item usage for cleanup and search.
type Tracker interface {
	ItemStored(ctx context.Context, res RepoResource) error
	ItemDownloaded(ctx context.Context, p RepoPath, at time.Time) error
}

// UpstreamInfo describes an item on a remote server.
type UpstreamInfo struct {
	Found        bool
	LastModified time.Time
	Size         int64
}

// Upstream is the client used by remote repositories.
type Upstream interface {
	Head(ctx context.Context, path string) (UpstreamInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, UpstreamInfo, error)
}

// InfoCache remembers remote lookups.
type InfoCache interface {
	Get(ctx context.Context, p RepoPath) (RepoResource, bool, error)
	Set(ctx context.Context, res RepoResource, ttl time.Duration) error
}

// timeNow is used to timestamp downloads. Overridden in tests.
var timeNow = time.Now
