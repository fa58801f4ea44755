package repository

import (
	"time"

	"github.com/mavenhub/registry/registry/maven"
)

// DefaultGroup is the target group of requests resolved against every
// repository.
const DefaultGroup = ""

// Request is an inbound item request.
type Request struct {
	// RepoKey is the repository addressed by the client. It may name a
	// virtual repository.
	RepoKey string
	Path    string
	// IfModifiedSince and LastModified carry the modification time of the
	// copy held by the requester, if any.
	IfModifiedSince time.Time
	LastModified    time.Time
	HeadOnly        bool
	// Recursive marks requests which already went through this node.
	Recursive bool
	// FromPeerNode marks requests sent by another node of the federation.
	FromPeerNode bool
	// TargetGroup narrows the local repositories consulted to the named one
	// unless it is DefaultGroup. Caches and remotes are still consulted.
	TargetGroup string
}

// RepoPath returns the path addressed by r.
func (r Request) RepoPath() RepoPath {
	return NewRepoPath(r.RepoKey, r.Path)
}

// IsSnapshotOrMetadata reports whether the item may change in place and
// must be resolved across all repositories.
func (r Request) IsSnapshotOrMetadata() bool {
	return maven.IsSnapshotPath(r.Path) || maven.IsMetadataPath(r.Path)
}

// IsNewerThanResource reports whether the copy held by the requester is at
// least as recent as a resource modified at lastModified. Times are compared
// at second precision, the precision of http dates.
func (r Request) IsNewerThanResource(lastModified time.Time) bool {
	held := r.IfModifiedSince
	if held.IsZero() {
		held = r.LastModified
	}
	if held.IsZero() || lastModified.IsZero() {
		return false
	}
	return !held.Truncate(time.Second).Before(lastModified.Truncate(time.Second))
}
