package repository

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// RepoResource describes the outcome of looking an item up in a repository.
// A zero LastModified means the modification time is unknown.
type RepoResource struct {
	RepoPath     RepoPath
	Found        bool
	Folder       bool
	LastModified time.Time
	Size         int64
	// MetadataOnly marks resources which only carry metadata, such as
	// results of remote lookups performed without fetching content.
	MetadataOnly bool
	Digest       digest.Digest
}

// NotFound returns an unfound resource for p.
func NotFound(p RepoPath) RepoResource {
	return RepoResource{RepoPath: p}
}

// IsNewerThan reports whether r was modified strictly after other. A found
// resource is newer than an unfound one and an unknown modification time is
// older than any known one.
func (r RepoResource) IsNewerThan(other RepoResource) bool {
	if !r.Found {
		return false
	}
	if !other.Found {
		return true
	}
	return r.LastModified.After(other.LastModified)
}
