package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/aql"
	"github.com/mavenhub/registry/registry/cleanup"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/registry/resolver"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

var (
	errUnknownRepository = errors.New("unknown repository")
	errNotLocal          = errors.New("items can only be deployed to local repositories")
	errBadRequest        = errors.New("bad request")
	errIndexDisabled     = errors.New("the index database is disabled")
)

// statusError attaches an explicit response status to an error.
type statusError struct {
	status int
	err    error
}

func (e statusError) Error() string { return e.err.Error() }

func (e statusError) Unwrap() error { return e.err }

func withStatus(status int, err error) error {
	return statusError{status: status, err: err}
}

func statusOf(err error) int {
	var se statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, errUnknownRepository),
		errors.Is(err, resolver.ErrRepositoryNotFound),
		errors.Is(err, repository.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, aql.ErrInvalidQuery),
		errors.Is(err, cleanup.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errNotLocal):
		return http.StatusMethodNotAllowed
	case errors.Is(err, errIndexDisabled),
		errors.Is(err, cleanup.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

type errorDetail struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type errorsResponse struct {
	Errors []errorDetail `json:"errors"`
}

// serveErrors writes errs as a JSON document. The response status is the one
// of the first error. Server side failures are reported to error tracking.
func serveErrors(ctx context.Context, w http.ResponseWriter, errs []error) {
	resp := errorsResponse{Errors: make([]errorDetail, 0, len(errs))}
	for _, err := range errs {
		status := statusOf(err)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			errortracking.Capture(err, errortracking.WithContext(ctx))
			dcontext.GetLogger(ctx).WithError(err).Error("request failed")
		}
		resp.Errors = append(resp.Errors, errorDetail{Status: status, Message: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.Errors[0].Status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		dcontext.GetLogger(ctx).WithError(err).Error("failed to write error response")
	}
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
