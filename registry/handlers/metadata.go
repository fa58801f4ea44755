package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/repository"
)

func metadataDispatcher(ctx *Context, r *http.Request) http.Handler {
	mh := &metadataHandler{
		Context:  ctx,
		RepoPath: ctx.repoPath(),
	}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(mh.Recalculate),
	}
}

type metadataHandler struct {
	*Context

	RepoPath repository.RepoPath
}

type recalculateResponse struct {
	Repo    string   `json:"repo"`
	Path    string   `json:"path"`
	Folders int      `json:"folders"`
	Updated int      `json:"updated"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

// Recalculate rebuilds every metadata document below the requested folder.
// Documents which no longer describe anything are removed.
func (mh *metadataHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	log := dcontext.GetLogger(mh)
	log.Debug("Recalculate")

	repo, ok := mh.registry.Repository(mh.RepoPath.RepoKey)
	if !ok {
		mh.Errors = append(mh.Errors, fmt.Errorf("%w: %s", errUnknownRepository, mh.RepoPath.RepoKey))
		return
	}
	if k := repo.Kind(); k != repository.KindLocal && k != repository.KindCache {
		mh.Errors = append(mh.Errors, badRequest("%s is a %s repository", repo.Key(), k))
		return
	}

	info, err := mh.store.Info(mh, mh.RepoPath)
	if err != nil {
		mh.Errors = append(mh.Errors, err)
		return
	}
	if !mh.RepoPath.IsRoot() && !info.Found {
		mh.Errors = append(mh.Errors, fmt.Errorf("%s: %w", mh.RepoPath, repository.ErrResourceNotFound))
		return
	}
	if info.Found && !info.Folder {
		mh.Errors = append(mh.Errors, badRequest("%s is not a folder", mh.RepoPath))
		return
	}

	report := mh.calculator.RecalculateTree(mh, mh.RepoPath)

	resp := recalculateResponse{
		Repo:    mh.RepoPath.RepoKey,
		Path:    "/" + mh.RepoPath.Path,
		Folders: report.Folders,
		Updated: report.Updated,
		Removed: report.Removed,
	}
	if report.Errors != nil {
		resp.Errors = errorMessages(report.Errors)
		log.WithError(report.Errors).Warn("metadata recalculation completed with errors")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to write recalculation response")
	}
}

// errorMessages flattens an error accumulated with multierror.
func errorMessages(err error) []string {
	var wrapped interface{ WrappedErrors() []error }
	if errors.As(err, &wrapped) {
		msgs := make([]string, 0, len(wrapped.WrappedErrors()))
		for _, e := range wrapped.WrappedErrors() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
