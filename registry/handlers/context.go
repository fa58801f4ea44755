package handlers

import (
	"context"

	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/repository"
)

// Context should contain the request specific context for use in across
// handlers. Resources that don't need to be shared across handlers should not
// be on this object.
type Context struct {
	// App points to the application structure that created this context.
	*App
	context.Context

	// Errors is a collection of errors encountered during the request to be
	// returned to the client API. If errors are added to the collection, the
	// handler *must not* start the response via http.ResponseWriter.
	Errors []error
}

// Value overrides context.Context.Value to ensure that calls are routed to
// correct context.
func (ctx *Context) Value(key interface{}) interface{} {
	return ctx.Context.Value(key)
}

// repoPath returns the item addressed by the route variables.
func (ctx *Context) repoPath() repository.RepoPath {
	return repository.NewRepoPath(
		dcontext.GetStringValue(ctx, "vars.repo"),
		dcontext.GetStringValue(ctx, "vars.path"),
	)
}
