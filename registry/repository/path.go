package repository

import (
	"fmt"
	"path"
	"strings"
)

// RepoPath identifies an item (file or folder) inside a repository. Path is
// relative to the repository root, uses forward slashes and has no leading
// or trailing slash. The repository root itself has an empty Path.
type RepoPath struct {
	RepoKey string
	Path    string
}

// NewRepoPath returns a normalized RepoPath.
func NewRepoPath(repoKey, p string) RepoPath {
	return RepoPath{RepoKey: repoKey, Path: cleanPath(p)}
}

func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// IsRoot reports whether p points at the repository root.
func (p RepoPath) IsRoot() bool {
	return p.Path == ""
}

// Name returns the last path segment, empty for the root.
func (p RepoPath) Name() string {
	if p.IsRoot() {
		return ""
	}
	return path.Base(p.Path)
}

// Parent returns the enclosing folder. The parent of the root is the root.
func (p RepoPath) Parent() RepoPath {
	dir := path.Dir(p.Path)
	if dir == "." || dir == "/" {
		dir = ""
	}
	return RepoPath{RepoKey: p.RepoKey, Path: dir}
}

// Child returns the path of the named entry inside p.
func (p RepoPath) Child(name string) RepoPath {
	return NewRepoPath(p.RepoKey, path.Join(p.Path, name))
}

// IsAncestorOf reports whether other lies strictly below p.
func (p RepoPath) IsAncestorOf(other RepoPath) bool {
	if p.RepoKey != other.RepoKey || p.Path == other.Path {
		return false
	}
	if p.IsRoot() {
		return true
	}
	return strings.HasPrefix(other.Path, p.Path+"/")
}

func (p RepoPath) String() string {
	return p.RepoKey + ":" + p.Path
}

// ParseRepoPath parses the "repoKey:path" form returned by String.
func ParseRepoPath(s string) (RepoPath, error) {
	i := strings.Index(s, ":")
	if i <= 0 {
		return RepoPath{}, fmt.Errorf("invalid repository path %q: missing repository key", s)
	}
	return NewRepoPath(s[:i], s[i+1:]), nil
}
