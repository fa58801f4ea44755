package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mavenhub/registry/configuration"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/remote"
	_ "github.com/mavenhub/registry/registry/storage/driver/inmemory"
	"github.com/stretchr/testify/require"
)

const (
	testNodeID = "node-1"

	jarPath = "org/acme/lib/1.0/lib-1.0.jar"
	pomPath = "org/acme/lib/1.0/lib-1.0.pom"
	pom     = `<project>
  <groupId>org.acme</groupId>
  <artifactId>lib</artifactId>
  <version>1.0</version>
</project>`
)

var upstreamModified = time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)

// upstream serves a single jar and counts the requests it receives.
type upstream struct {
	*httptest.Server
	requests int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := new(upstream)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.requests, 1)
		if r.URL.Path != "/junit/junit/4.12/junit-4.12.jar" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Last-Modified", upstreamModified.Format(http.TimeFormat))
		w.Header().Set("Content-Length", "5")
		if r.Method == http.MethodGet {
			w.Write([]byte("junit"))
		}
	}))
	t.Cleanup(u.Close)

	return u
}

func (u *upstream) count() int {
	return int(atomic.LoadInt32(&u.requests))
}

func newTestApp(t *testing.T, upstreamURL string) *App {
	t.Helper()

	config := &configuration.Configuration{
		Storage: configuration.Storage{"inmemory": configuration.Parameters{}},
		Repositories: configuration.Repositories{
			Local: []configuration.LocalRepository{{Key: "libs-release"}},
			Remote: []configuration.RemoteRepository{{
				Key:          "central",
				URL:          upstreamURL,
				StoreLocally: true,
			}},
			Virtual: []configuration.VirtualRepository{{
				Key:          "repo",
				Repositories: []string{"libs-release", "central"},
			}},
		},
		Cleanup: configuration.Cleanup{
			Policies: []configuration.CleanupPolicy{{Repository: "central-cache", UnusedPeriod: time.Hour}},
		},
	}

	return newTestAppWithConfig(t, config)
}

func newTestAppWithConfig(t *testing.T, config *configuration.Configuration) *App {
	t.Helper()

	config.HTTP.NodeID = testNodeID

	ctx, cancel := context.WithCancel(context.Background())
	app, err := NewApp(ctx, config)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, app.Shutdown())
	})

	return app
}

func serve(app *App, method, target string, body string, header http.Header) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, vv := range header {
		for _, v := range vv {
			r.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, r)
	return rec
}

func requireErrorStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()

	require.Equal(t, status, rec.Code)
	var resp errorsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Errors)
	require.Equal(t, status, resp.Errors[0].Status)
}

func stubTimeNow(tb testing.TB, t time.Time) {
	tb.Helper()

	bkp := timeNow
	timeNow = func() time.Time { return t }
	tb.Cleanup(func() { timeNow = bkp })
}

func TestApp_Ping(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodGet, "/api/system/ping", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestApp_UnknownRoute(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodGet, "/v2/_catalog", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApp_MethodNotAllowed(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodGet, "/api/search/aql", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestApp_DeployAndDownload(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")
	deployed := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	stubTimeNow(t, deployed)

	rec := serve(app, http.MethodPut, "/artifactory/libs-release/"+jarPath, "content", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp deployResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "libs-release", resp.Repo)
	require.Equal(t, "/"+jarPath, resp.Path)
	require.EqualValues(t, 7, resp.Size)
	require.Len(t, resp.Checksums["sha256"], 64)

	rec = serve(app, http.MethodGet, "/artifactory/libs-release/"+jarPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "content", rec.Body.String())
	require.Equal(t, deployed.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))
	require.Equal(t, "application/java-archive", rec.Header().Get("Content-Type"))
	require.Equal(t, "libs-release", rec.Header().Get("X-Registry-Repository"))
	require.Equal(t, resp.Checksums["sha256"], rec.Header().Get(checksumHeader))

	// through the virtual repository
	rec = serve(app, http.MethodGet, "/artifactory/repo/"+jarPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "content", rec.Body.String())
}

func TestApp_HeadAndConditionalGet(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")
	deployed := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	stubTimeNow(t, deployed)

	rec := serve(app, http.MethodPut, "/artifactory/libs-release/"+jarPath, "content", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(app, http.MethodHead, "/artifactory/libs-release/"+jarPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "7", rec.Header().Get("Content-Length"))

	tests := []struct {
		name       string
		since      time.Time
		wantStatus int
	}{
		{name: "same second", since: deployed, wantStatus: http.StatusNotModified},
		{name: "later", since: deployed.Add(time.Hour), wantStatus: http.StatusNotModified},
		{name: "earlier", since: deployed.Add(-time.Second), wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{"If-Modified-Since": []string{tt.since.Format(http.TimeFormat)}}
			rec := serve(app, http.MethodGet, "/artifactory/libs-release/"+jarPath, "", h)
			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec = serve(app, http.MethodGet, "/artifactory/libs-release/"+jarPath, "", http.Header{"If-Modified-Since": []string{"yesterday"}})
	requireErrorStatus(t, rec, http.StatusBadRequest)
}

func TestApp_NotFound(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodGet, "/artifactory/libs-release/"+jarPath, "", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)

	rec = serve(app, http.MethodGet, "/artifactory/unknown/"+jarPath, "", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)
}

func TestApp_RemoteFetchIsCached(t *testing.T) {
	u := newUpstream(t)
	app := newTestApp(t, u.URL)
	p := "junit/junit/4.12/junit-4.12.jar"

	rec := serve(app, http.MethodGet, "/artifactory/central/"+p, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "junit", rec.Body.String())
	require.Equal(t, upstreamModified.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))
	require.Equal(t, "central", rec.Header().Get("X-Registry-Repository"))

	requests := u.count()
	rec = serve(app, http.MethodGet, "/artifactory/central/"+p, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "junit", rec.Body.String())
	require.Equal(t, "central-cache", rec.Header().Get("X-Registry-Repository"))
	require.Equal(t, requests, u.count())
}

func TestApp_UpstreamFailureMidBodyAbortsResponse(t *testing.T) {
	u := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", upstreamModified.Format(http.TimeFormat))
		w.Header().Set("Content-Length", "64")
		if r.Method != http.MethodGet {
			return
		}
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer u.Close()

	app := newTestAppWithConfig(t, &configuration.Configuration{
		Storage: configuration.Storage{"inmemory": configuration.Parameters{}},
		Repositories: configuration.Repositories{
			Remote: []configuration.RemoteRepository{{Key: "central", URL: u.URL}},
		},
	})
	srv := httptest.NewServer(app)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/artifactory/central/junit/junit/4.12/junit-4.12.jar")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := ioutil.ReadAll(resp.Body)
	require.Error(t, err)
	require.Equal(t, "partial", string(body))
}

func TestApp_LoopsAreNotResolved(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{name: "recursive", header: http.Header{recursiveHeader: []string{"true"}}},
		{name: "originated here", header: http.Header{remote.OriginatedHeader: []string{"other, " + testNodeID}}},
		{name: "from peer node", header: http.Header{originHeader: []string{originPeer}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t)
			app := newTestApp(t, u.URL)

			rec := serve(app, http.MethodGet, "/artifactory/central/junit/junit/4.12/junit-4.12.jar", "", tt.header)
			requireErrorStatus(t, rec, http.StatusNotFound)
			require.Zero(t, u.count())
		})
	}
}

func TestApp_DeployRejected(t *testing.T) {
	u := newUpstream(t)
	app := newTestApp(t, u.URL)

	rec := serve(app, http.MethodPut, "/artifactory/unknown/"+jarPath, "content", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)

	rec = serve(app, http.MethodPut, "/artifactory/central/"+jarPath, "content", nil)
	requireErrorStatus(t, rec, http.StatusMethodNotAllowed)

	rec = serve(app, http.MethodPut, "/artifactory/libs-release/", "content", nil)
	requireErrorStatus(t, rec, http.StatusBadRequest)
}

func TestApp_DeployUpdatesMetadata(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")
	stubTimeNow(t, time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC))

	rec := serve(app, http.MethodPut, "/artifactory/libs-release/"+jarPath, "content", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(app, http.MethodPut, "/artifactory/libs-release/"+pomPath, pom, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(app, http.MethodGet, "/artifactory/libs-release/org/acme/lib/maven-metadata.xml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	md, err := maven.ParseMetadata(rec.Body.String())
	require.NoError(t, err)
	require.Equal(t, "org.acme", md.GroupID)
	require.Equal(t, "lib", md.ArtifactID)
	require.Equal(t, maven.Versions{"1.0"}, md.Versioning.Versions)
}

func TestApp_Delete(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodPut, "/artifactory/libs-release/"+jarPath, "content", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(app, http.MethodPut, "/artifactory/libs-release/"+pomPath, pom, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(app, http.MethodDelete, "/artifactory/libs-release/org/acme/lib/1.0", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(app, http.MethodGet, "/artifactory/libs-release/"+jarPath, "", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)

	rec = serve(app, http.MethodDelete, "/artifactory/libs-release/"+jarPath, "", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)

	rec = serve(app, http.MethodDelete, "/artifactory/libs-release/", "", nil)
	requireErrorStatus(t, rec, http.StatusBadRequest)

	rec = serve(app, http.MethodDelete, "/artifactory/central/"+jarPath, "", nil)
	requireErrorStatus(t, rec, http.StatusMethodNotAllowed)
}

func TestApp_RecalculateMetadata(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodPut, "/artifactory/libs-release/"+pomPath, pom, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(app, http.MethodPost, "/api/metadata/recalculate/libs-release/org", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp recalculateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "libs-release", resp.Repo)
	require.Equal(t, "/org", resp.Path)
	require.Positive(t, resp.Folders)
	require.Empty(t, resp.Errors)

	rec = serve(app, http.MethodPost, "/api/metadata/recalculate/libs-release/"+pomPath, "", nil)
	requireErrorStatus(t, rec, http.StatusBadRequest)

	rec = serve(app, http.MethodPost, "/api/metadata/recalculate/libs-release/missing", "", nil)
	requireErrorStatus(t, rec, http.StatusNotFound)

	rec = serve(app, http.MethodPost, "/api/metadata/recalculate/central/org", "", nil)
	requireErrorStatus(t, rec, http.StatusBadRequest)
}

func TestApp_IndexDisabled(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	rec := serve(app, http.MethodPost, "/api/search/aql", `{"find":"items"}`, nil)
	requireErrorStatus(t, rec, http.StatusServiceUnavailable)

	rec = serve(app, http.MethodPost, "/api/cleanup/central-cache", "", nil)
	requireErrorStatus(t, rec, http.StatusServiceUnavailable)
}

func TestApp_CleanupRequiresIndex(t *testing.T) {
	config := &configuration.Configuration{
		Storage: configuration.Storage{"inmemory": configuration.Parameters{}},
		Cleanup: configuration.Cleanup{Enabled: true},
	}

	_, err := NewApp(context.Background(), config)
	require.EqualError(t, err, "cleanup requires the index database to be enabled")
}

func TestApp_UnknownStorageDriver(t *testing.T) {
	config := &configuration.Configuration{
		Storage: configuration.Storage{"nope": configuration.Parameters{}},
	}

	_, err := NewApp(context.Background(), config)
	require.Error(t, err)
	require.Contains(t, err.Error(), "creating nope storage driver")
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"lib-1.0.jar":        "application/java-archive",
		"lib-1.0.pom":        "application/xml",
		"maven-metadata.xml": "application/xml",
		"lib-1.0.jar.sha1":   "text/plain",
		"lib-1.0.tar.gz":     "application/octet-stream",
	}
	for name, want := range tests {
		require.Equal(t, want, contentType(name), name)
	}
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusOf(badRequest("x")))
	require.Equal(t, http.StatusTeapot, statusOf(withStatus(http.StatusTeapot, errUnknownRepository)))
	require.Equal(t, http.StatusNotFound, statusOf(errUnknownRepository))
	require.Equal(t, http.StatusServiceUnavailable, statusOf(errIndexDisabled))
	require.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}
