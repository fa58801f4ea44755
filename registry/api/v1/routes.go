// Package v1 declares the HTTP routes served by the registry.
package v1

import "github.com/gorilla/mux"

// The following are definitions of the name under which all routes are
// registered. These symbols can be used to look up a route based on the name.
const (
	RouteNameBase                = "base"
	RouteNameArtifact            = "artifact"
	RouteNameSearchAQL           = "search-aql"
	RouteNameMetadataRecalculate = "metadata-recalculate"
	RouteNameCleanup             = "cleanup"

	RoutePathBase                = "/api/system/ping"
	RoutePathArtifact            = "/artifactory/{repo}/{path:.*}"
	RoutePathSearchAQL           = "/api/search/aql"
	RoutePathMetadataRecalculate = "/api/metadata/recalculate/{repo}/{path:.*}"
	RoutePathCleanup             = "/api/cleanup/{repo}"
)

type routeDescriptor struct {
	Name string
	Path string
}

var routeDescriptors = []routeDescriptor{
	{Name: RouteNameBase, Path: RoutePathBase},
	{Name: RouteNameArtifact, Path: RoutePathArtifact},
	{Name: RouteNameSearchAQL, Path: RoutePathSearchAQL},
	{Name: RouteNameMetadataRecalculate, Path: RoutePathMetadataRecalculate},
	{Name: RouteNameCleanup, Path: RoutePathCleanup},
}

// RoutePath returns the path template of the named route, or an empty
// string for unknown names.
func RoutePath(routeName string) string {
	for _, d := range routeDescriptors {
		if d.Name == routeName {
			return d.Path
		}
	}
	return ""
}

// Router builds a gorilla router with named routes for the various API
// methods.
func Router() *mux.Router {
	return RouterWithPrefix("")
}

// RouterWithPrefix builds a gorilla router with a configured prefix on all
// routes.
func RouterWithPrefix(prefix string) *mux.Router {
	rootRouter := mux.NewRouter()
	router := rootRouter
	if prefix != "" {
		router = router.PathPrefix(prefix).Subrouter()
	}

	for _, descriptor := range routeDescriptors {
		router.Path(descriptor.Path).Name(descriptor.Name)
	}

	return rootRouter
}
