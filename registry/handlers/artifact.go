package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/remote"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/registry/resolver"
)

const (
	// originHeader set to "peer" marks requests forwarded by another node,
	// which must not be resolved against remote repositories again.
	originHeader = "X-Registry-Origin"
	originPeer   = "peer"
	// recursiveHeader marks requests already resolved by this node.
	recursiveHeader   = "X-Registry-Recursive"
	checksumHeader    = "X-Checksum-Sha256"
	targetGroupParam  = "targetGroup"
	lastModifiedParam = "lastModified"
)

// timeNow is used to timestamp deployments. Overridden in tests.
var timeNow = time.Now

// artifactDispatcher uses the request context to build an artifactHandler.
func artifactDispatcher(ctx *Context, r *http.Request) http.Handler {
	ah := &artifactHandler{
		Context:  ctx,
		RepoPath: ctx.repoPath(),
	}

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(ah.GetArtifact),
		http.MethodHead:   http.HandlerFunc(ah.GetArtifact),
		http.MethodPut:    http.HandlerFunc(ah.PutArtifact),
		http.MethodDelete: http.HandlerFunc(ah.DeleteArtifact),
	}
}

// artifactHandler serves item requests.
type artifactHandler struct {
	*Context

	RepoPath repository.RepoPath
}

// newRequest translates r into a resolution request.
func (ah *artifactHandler) newRequest(r *http.Request) (repository.Request, error) {
	req := repository.Request{
		RepoKey:      ah.RepoPath.RepoKey,
		Path:         ah.RepoPath.Path,
		HeadOnly:     r.Method == http.MethodHead,
		FromPeerNode: strings.EqualFold(r.Header.Get(originHeader), originPeer),
		TargetGroup:  r.URL.Query().Get(targetGroupParam),
	}

	if v := r.Header.Get("If-Modified-Since"); v != "" {
		t, err := http.ParseTime(v)
		if err != nil {
			return req, badRequest("invalid If-Modified-Since header %q", v)
		}
		req.IfModifiedSince = t
	}
	if v := r.URL.Query().Get(lastModifiedParam); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, badRequest("invalid %s parameter %q", lastModifiedParam, v)
		}
		req.LastModified = time.Unix(0, ms*int64(time.Millisecond))
	}

	if r.Header.Get(recursiveHeader) != "" {
		req.Recursive = true
	}
	for _, node := range r.Header.Values(remote.OriginatedHeader) {
		for _, id := range strings.Split(node, ",") {
			if strings.TrimSpace(id) == ah.Config.HTTP.NodeID {
				req.Recursive = true
			}
		}
	}

	return req, nil
}

// GetArtifact resolves the requested item and serves it, or only its
// headers for HEAD requests.
func (ah *artifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	log := dcontext.GetLogger(ah)
	log.Debug("GetArtifact")

	req, err := ah.newRequest(r)
	if err != nil {
		ah.Errors = append(ah.Errors, err)
		return
	}

	result, err := ah.resolver.Resolve(ah, req)
	if err != nil {
		ah.Errors = append(ah.Errors, err)
		return
	}

	switch result.Kind {
	case resolver.NotFound:
		reason := result.Reason
		if reason == nil {
			reason = resolver.ErrNotFound
		}
		log.WithError(reason).Debug("item not found")
		ah.Errors = append(ah.Errors, withStatus(http.StatusNotFound, fmt.Errorf("%s: %w", ah.RepoPath, reason)))
	case resolver.NotModified:
		setResourceHeaders(w, result)
		w.WriteHeader(http.StatusNotModified)
	case resolver.HeadOnly:
		setResourceHeaders(w, result)
		w.WriteHeader(http.StatusOK)
	case resolver.Found:
		defer result.Body.Close()

		setResourceHeaders(w, result)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, result.Body); err != nil {
			// the status line is gone, reset the connection so the client
			// never takes a truncated body for a complete one
			log.WithError(err).Error("failed to stream item")
			panic(http.ErrAbortHandler)
		}
	}
}

func setResourceHeaders(w http.ResponseWriter, result resolver.Result) {
	res := result.Resource
	h := w.Header()
	h.Set("Content-Type", contentType(res.RepoPath.Name()))
	if !res.LastModified.IsZero() {
		h.Set("Last-Modified", res.LastModified.UTC().Format(http.TimeFormat))
	}
	if res.Size > 0 && result.Kind != resolver.NotModified {
		h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	if res.Digest != "" {
		h.Set(checksumHeader, res.Digest.Encoded())
	}
	if result.Repository != nil {
		h.Set("X-Registry-Repository", result.Repository.Key())
	}
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".pom"), strings.HasSuffix(name, ".xml"):
		return "application/xml"
	case strings.HasSuffix(name, ".jar"), strings.HasSuffix(name, ".war"), strings.HasSuffix(name, ".ear"):
		return "application/java-archive"
	case strings.HasSuffix(name, ".sha1"), strings.HasSuffix(name, ".md5"), strings.HasSuffix(name, ".sha256"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

type deployResponse struct {
	Repo      string            `json:"repo"`
	Path      string            `json:"path"`
	Created   time.Time         `json:"created"`
	Size      int64             `json:"size"`
	Checksums map[string]string `json:"checksums,omitempty"`
}

// PutArtifact deploys the request body to a local repository and updates
// the metadata affected by the new item.
func (ah *artifactHandler) PutArtifact(w http.ResponseWriter, r *http.Request) {
	log := dcontext.GetLogger(ah)
	log.Debug("PutArtifact")

	repo, ok := ah.registry.Repository(ah.RepoPath.RepoKey)
	if !ok {
		ah.Errors = append(ah.Errors, fmt.Errorf("%w: %s", errUnknownRepository, ah.RepoPath.RepoKey))
		return
	}
	if repo.Kind() != repository.KindLocal {
		ah.Errors = append(ah.Errors, fmt.Errorf("%w: %s is a %s repository", errNotLocal, repo.Key(), repo.Kind()))
		return
	}
	if ah.RepoPath.IsRoot() || strings.HasSuffix(r.URL.Path, "/") {
		ah.Errors = append(ah.Errors, badRequest("cannot deploy to folder %s", ah.RepoPath))
		return
	}

	res, err := ah.store.WriteCached(ah, ah.RepoPath, r.Body, timeNow())
	if err != nil {
		ah.Errors = append(ah.Errors, fmt.Errorf("deploying %s: %w", ah.RepoPath, err))
		return
	}
	log.WithField("size", res.Size).Info("item deployed")

	if err := ah.calculator.ItemDeployed(ah, ah.RepoPath); err != nil {
		log.WithError(err).Warn("failed to update metadata of deployed item")
	}
	if ah.tracker != nil {
		if err := ah.tracker.ItemStored(ah, res); err != nil {
			log.WithError(err).Warn("failed to index deployed item")
		}
	}

	resp := deployResponse{
		Repo:    res.RepoPath.RepoKey,
		Path:    "/" + res.RepoPath.Path,
		Created: res.LastModified.UTC(),
		Size:    res.Size,
	}
	if res.Digest != "" {
		resp.Checksums = map[string]string{"sha256": res.Digest.Encoded()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", r.URL.String())
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to write deploy response")
	}
}

// DeleteArtifact deletes an item, file or folder, and recalculates the
// metadata of the folders holding it.
func (ah *artifactHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	dcontext.GetLogger(ah).Debug("DeleteArtifact")

	repo, ok := ah.registry.Repository(ah.RepoPath.RepoKey)
	if !ok {
		ah.Errors = append(ah.Errors, fmt.Errorf("%w: %s", errUnknownRepository, ah.RepoPath.RepoKey))
		return
	}
	if k := repo.Kind(); k != repository.KindLocal && k != repository.KindCache {
		ah.Errors = append(ah.Errors, withStatus(http.StatusMethodNotAllowed,
			fmt.Errorf("items of %s repository %s cannot be deleted", k, repo.Key())))
		return
	}
	if ah.RepoPath.IsRoot() {
		ah.Errors = append(ah.Errors, badRequest("cannot delete the root of %s", repo.Key()))
		return
	}

	if err := ah.vacuum.RemoveItem(ah, ah.RepoPath); err != nil {
		if errors.Is(err, repository.ErrResourceNotFound) {
			ah.Errors = append(ah.Errors, withStatus(http.StatusNotFound, err))
			return
		}
		ah.Errors = append(ah.Errors, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
