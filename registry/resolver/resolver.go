// Package resolver locates the repository serving a requested item and
// decides how the request is answered.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"

	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/repository"
)

// Kind is the response decided for a request.
type Kind int

const (
	// NotFound means no candidate holds the item.
	NotFound Kind = iota
	// HeadOnly means the item was found and only its metadata is returned.
	HeadOnly
	// NotModified means the requester already holds an up to date copy.
	NotModified
	// Found means the item content is returned.
	Found
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case HeadOnly:
		return "head_only"
	case NotModified:
		return "not_modified"
	case Found:
		return "found"
	default:
		return "unknown"
	}
}

// Result is the outcome of a resolution.
type Result struct {
	Kind Kind
	// Resource and Repository are set unless Kind is NotFound.
	Resource   repository.RepoResource
	Repository repository.Repository
	// Body is the item content, set when Kind is Found. Callers must close
	// it. Read failures wrap ErrStreamingFailure.
	Body io.ReadCloser
	// Reason explains a NotFound result.
	Reason error
}

// Resolver resolves requests against the repositories of a registry.
type Resolver struct {
	registry *repository.Registry
}

// New returns a Resolver over reg.
func New(reg *repository.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve finds the item requested by req. Release items are served by the
// first candidate holding them. Snapshots and metadata documents are served
// by the candidate holding the most recently modified copy.
func (r *Resolver) Resolve(ctx context.Context, req repository.Request) (Result, error) {
	log := dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
		"repository": req.RepoKey,
		"path":       req.Path,
	})

	if req.Recursive {
		resolution(strategyNone)(NotFound.String())
		log.WithError(ErrRecursiveLoopDetected).Warn("refusing to resolve request")
		return Result{Kind: NotFound, Reason: ErrRecursiveLoopDetected}, nil
	}

	candidates, err := BuildCandidates(ctx, r.registry, req)
	if err != nil {
		return Result{}, err
	}

	strategy := strategyStandard
	if req.IsSnapshotOrMetadata() {
		strategy = strategyUpdate
	}
	done := resolution(strategy)

	var (
		owner repository.Repository
		res   repository.RepoResource
	)
	if strategy == strategyUpdate {
		owner, res, err = latest(ctx, candidates, req.Path)
	} else {
		owner, res, err = first(ctx, candidates, req.Path)
	}
	if err != nil {
		done("error")
		return Result{}, err
	}

	result, err := decide(ctx, req, owner, res)
	if err != nil {
		done("error")
		return Result{}, err
	}
	done(result.Kind.String())

	log.WithFields(map[string]interface{}{
		"strategy":   strategy,
		"candidates": len(candidates),
		"outcome":    result.Kind.String(),
	}).Debug("request resolved")

	return result, nil
}

// first returns the first candidate serving releases which holds path.
func first(ctx context.Context, candidates []repository.Repository, path string) (repository.Repository, repository.RepoResource, error) {
	for _, repo := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, repository.RepoResource{}, err
		}
		if !repo.HandleReleases() {
			continue
		}

		res, ok := lookup(ctx, repo, path)
		if ok {
			return repo, res, nil
		}
	}
	return nil, repository.RepoResource{}, nil
}

// latest returns the candidate holding the most recently modified copy of
// path. Ties keep the candidate found first.
func latest(ctx context.Context, candidates []repository.Repository, path string) (repository.Repository, repository.RepoResource, error) {
	snapshot := maven.IsSnapshotPath(path)

	var (
		owner repository.Repository
		best  repository.RepoResource
	)
	for _, repo := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, repository.RepoResource{}, err
		}
		if snapshot && !repo.HandleSnapshots() {
			continue
		}

		res, ok := lookup(ctx, repo, path)
		if !ok {
			continue
		}
		if owner == nil || res.IsNewerThan(best) {
			owner, best = repo, res
		}
	}
	return owner, best, nil
}

// lookup reports whether repo holds an item at path. Lookup failures are
// logged and count as a miss.
func lookup(ctx context.Context, repo repository.Repository, path string) (repository.RepoResource, bool) {
	res, err := repo.Info(ctx, path)
	if err != nil {
		dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
			"candidate": repo.Key(),
			"path":      path,
		}).WithError(err).Warn("failed to look up item, skipping repository")
		return repository.RepoResource{}, false
	}
	return res, res.Found && !res.Folder
}

func decide(ctx context.Context, req repository.Request, owner repository.Repository, res repository.RepoResource) (Result, error) {
	if owner == nil {
		return Result{Kind: NotFound, Reason: ErrNotFound}, nil
	}
	if req.HeadOnly {
		return Result{Kind: HeadOnly, Resource: res, Repository: owner}, nil
	}
	if req.IsNewerThanResource(res.LastModified) {
		return Result{Kind: NotModified, Resource: res, Repository: owner}, nil
	}

	rc, err := owner.Open(ctx, res)
	if err != nil {
		// gone between lookup and fetch
		if errors.Is(err, repository.ErrResourceNotFound) {
			return Result{Kind: NotFound, Reason: fmt.Errorf("%w: %v", ErrNotFound, err)}, nil
		}
		return Result{}, fmt.Errorf("%w: opening %s: %v", ErrStreamingFailure, res.RepoPath, err)
	}

	return Result{
		Kind:       Found,
		Resource:   res,
		Repository: owner,
		Body:       &streamReader{ReadCloser: rc, path: res.RepoPath},
	}, nil
}

// streamReader marks read failures as streaming failures.
type streamReader struct {
	io.ReadCloser
	path repository.RepoPath
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: reading %s: %v", ErrStreamingFailure, s.path, err)
	}
	return n, err
}
