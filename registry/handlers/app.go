package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/mavenhub/registry/configuration"
	dcontext "github.com/mavenhub/registry/context"
	v1 "github.com/mavenhub/registry/registry/api/v1"
	"github.com/mavenhub/registry/registry/cleanup"
	"github.com/mavenhub/registry/registry/datastore"
	"github.com/mavenhub/registry/registry/maven"
	"github.com/mavenhub/registry/registry/metadata"
	"github.com/mavenhub/registry/registry/remote"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/mavenhub/registry/registry/resolver"
	"github.com/mavenhub/registry/registry/storage"
	"github.com/mavenhub/registry/registry/storage/cache/memory"
	cachemetrics "github.com/mavenhub/registry/registry/storage/cache/metrics"
	rediscache "github.com/mavenhub/registry/registry/storage/cache/redis"
	"github.com/mavenhub/registry/registry/storage/driver"
	"github.com/mavenhub/registry/registry/storage/driver/factory"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

// App is a global registry application object. Shared resources can be placed
// on this object that will be accessible from all requests. Any writable
// fields should be protected.
type App struct {
	context.Context

	Config *configuration.Configuration

	router     *mux.Router
	driver     driver.StorageDriver
	store      *storage.Store
	registry   *repository.Registry
	resolver   *resolver.Resolver
	calculator *metadata.Calculator
	vacuum     *storage.Vacuum

	// set when the index database is enabled
	db      *datastore.DB
	tracker *datastore.Tracker
	aql     *datastore.AQLExecutor
	cleaner *cleanup.Cleaner

	cleanupSwitch *cleanup.Switch
	redis         redis.UniversalClient
}

// NewApp takes a configuration and returns a configured app, ready to serve
// requests. Background agents are bound to ctx.
func NewApp(ctx context.Context, config *configuration.Configuration) (*App, error) {
	app := &App{
		Config:        config,
		Context:       ctx,
		router:        v1.RouterWithPrefix(config.HTTP.Prefix),
		cleanupSwitch: new(cleanup.Switch),
	}
	log := dcontext.GetLogger(app)

	var err error
	app.driver, err = factory.Create(config.Storage.Type(), config.Storage.Parameters())
	if err != nil {
		return nil, fmt.Errorf("creating %s storage driver: %w", config.Storage.Type(), err)
	}
	app.store = storage.NewStore(app.driver)

	if config.Database.Enabled {
		db, err := datastore.OpenFromConfig(config, log.WithField("component", "registry.datastore"))
		if err != nil {
			return nil, fmt.Errorf("configuring database: %w", err)
		}
		app.db = db
		app.tracker = datastore.NewTracker(db, app.store)
		app.aql = datastore.NewAQLExecutor(db)
		log.Info("using the index database")
	}

	deps := repository.Dependencies{
		Storage:   app.store,
		InfoCache: app.configureInfoCache(),
		NewUpstream: func(c configuration.RemoteRepository) (repository.Upstream, error) {
			return remote.New(c, remote.WithNodeID(config.HTTP.NodeID))
		},
		Logger: log.WithField("component", "registry.repository"),
	}
	if app.tracker != nil {
		deps.Tracker = app.tracker
	}
	app.registry, err = repository.FromConfig(config.Repositories, deps)
	if err != nil {
		return nil, fmt.Errorf("configuring repositories: %w", err)
	}
	app.resolver = resolver.New(app.registry)

	cmp, ok := maven.NewComparators().Lookup(config.Metadata.VersionComparator)
	if !ok && config.Metadata.VersionComparator != "" {
		log.WithField("comparator", config.Metadata.VersionComparator).Warn("unknown version comparator, using default")
	}
	app.calculator = metadata.NewCalculator(app.store,
		metadata.WithComparator(cmp),
		metadata.WithCacheResolver(app.registry.IsCache),
	)

	var indexer storage.Indexer
	if app.tracker != nil {
		indexer = app.tracker
	}
	app.vacuum = storage.NewVacuum(app.store, app.calculator, indexer)

	if app.tracker != nil {
		app.cleaner = cleanup.NewCleaner(app.registry, app.tracker, app.vacuum,
			cleanup.WithPauser(app.cleanupSwitch),
			cleanup.WithCheckEvery(config.Cleanup.CheckEvery),
		)
	}

	app.register(v1.RouteNameBase, func(ctx *Context, r *http.Request) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprint(w, "OK")
		})
	})
	app.register(v1.RouteNameArtifact, artifactDispatcher)
	app.register(v1.RouteNameSearchAQL, searchDispatcher)
	app.register(v1.RouteNameMetadataRecalculate, metadataDispatcher)
	app.register(v1.RouteNameCleanup, cleanupDispatcher)

	if config.Maintenance.UploadPurging.Enabled {
		startUploadPurger(app, app.driver, log, config.Maintenance.UploadPurging.Age,
			config.Maintenance.UploadPurging.Interval, config.Maintenance.UploadPurging.DryRun)
	}
	if err := app.startCleanupAgent(); err != nil {
		return nil, err
	}

	return app, nil
}

func (app *App) configureInfoCache() repository.InfoCache {
	if !app.Config.Redis.Enabled {
		return cachemetrics.NewInfoCache("memory", memory.NewInfoCache(clock.New()))
	}

	app.redis = rediscache.NewClient(app.Config.Redis)
	dcontext.GetLoggerWithField(app, "addr", app.Config.Redis.Addr).Info("using redis item info cache")

	return cachemetrics.NewInfoCache("redis", rediscache.NewInfoCache(app.redis))
}

func (app *App) startCleanupAgent() error {
	config := app.Config.Cleanup
	if !config.Enabled {
		return nil
	}
	if app.cleaner == nil {
		return errors.New("cleanup requires the index database to be enabled")
	}

	policies := make([]cleanup.Policy, 0, len(config.Policies))
	for _, p := range config.Policies {
		if !app.registry.IsCache(p.Repository) {
			return fmt.Errorf("cleanup policy targets %q which is not a cache repository", p.Repository)
		}
		policies = append(policies, cleanup.Policy{Repository: p.Repository, UnusedPeriod: p.UnusedPeriod})
	}

	l := dcontext.GetLogger(app)
	w := cleanup.NewPolicyWorker(app.cleaner, policies, cleanup.WithWorkerLogger(l))
	opts := []cleanup.AgentOption{
		cleanup.WithLogger(l),
		cleanup.WithInitialInterval(config.Interval),
	}
	if config.MaxBackoff > 0 {
		opts = append(opts, cleanup.WithMaxBackoff(config.MaxBackoff))
	}
	if config.NoIdleBackoff {
		opts = append(opts, cleanup.WithoutIdleBackoff())
	}
	agent := cleanup.NewAgent(w, opts...)

	go func() {
		if err := agent.Start(app.Context); err != nil && !errors.Is(err, context.Canceled) {
			l.WithError(err).Error("cleanup agent stopped")
		}
	}()

	return nil
}

// Shutdown stops running cleanup sweeps and releases the resources held by
// the app.
func (app *App) Shutdown() error {
	app.cleanupSwitch.Stop()

	var errs *multierror.Error
	if err := app.registry.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing database connections: %w", err))
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing redis connections: %w", err))
		}
	}

	return errs.ErrorOrNil()
}

// Registry returns the configured repositories.
func (app *App) Registry() *repository.Registry { return app.registry }

// Store returns the item store.
func (app *App) Store() *storage.Store { return app.store }

// Calculator returns the metadata calculator.
func (app *App) Calculator() *metadata.Calculator { return app.calculator }

// Cleaner returns the unused item cleaner. It is nil without the index
// database.
func (app *App) Cleaner() *cleanup.Cleaner { return app.cleaner }

// DB returns the index database, nil when disabled.
func (app *App) DB() *datastore.DB { return app.db }

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

// dispatchFunc takes a context and request and returns a constructed handler
// for the route. The dispatcher will use this to dynamically create request
// specific handlers for each endpoint without creating a new router for each
// request.
type dispatchFunc func(ctx *Context, r *http.Request) http.Handler

// register a handler with the application, by route name. The handler will be
// passed through the application filters and context will be constructed at
// request time.
func (app *App) register(routeName string, dispatch dispatchFunc) {
	app.router.GetRoute(routeName).Handler(app.dispatcher(dispatch))
}

// dispatcher returns a handler that constructs a request specific context and
// handler, using the dispatch factory function.
func (app *App) dispatcher(dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := app.context(w, r)

		dispatch(ctx, r).ServeHTTP(w, r)

		if len(ctx.Errors) > 0 {
			serveErrors(ctx, w, ctx.Errors)
		}
	})
}

// context constructs the context object for the application. This only be
// called once per request.
func (app *App) context(w http.ResponseWriter, r *http.Request) *Context {
	ctx := dcontext.WithRequest(r.Context(), r)
	ctx = dcontext.WithVars(ctx, r)
	ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx,
		"http.request.id",
		"http.request.method",
		"http.request.uri",
		"http.request.useragent",
		"vars.repo",
		"vars.path"))

	return &Context{
		App:     app,
		Context: ctx,
	}
}

// startUploadPurger schedules a goroutine which will periodically check the
// storage driver for temporary files left behind by interrupted writes and
// remove them.
func startUploadPurger(ctx context.Context, d driver.StorageDriver, log dcontext.Logger, age, interval time.Duration, dryRun bool) {
	rand.Seed(time.Now().Unix())
	/* #nosec G404 */
	jitter := time.Duration(rand.Int()%60) * time.Minute
	log = log.WithField("component", "registry.storage.UploadPurger")

	go func() {
		log.WithField("jitter_m", jitter.Minutes()).Info("starting upload purge")
		time.Sleep(jitter)

		for {
			deleted, err := storage.PurgeUploads(ctx, d, time.Now().Add(-age), !dryRun)
			if err != nil {
				errortracking.Capture(err, errortracking.WithContext(ctx), errortracking.WithField("component", "registry.storage.UploadPurger"))
				log.WithError(err).Warn("failed to purge some uploads")
			}
			log.WithFields(logrus.Fields{"count": len(deleted), "dry_run": dryRun}).Info("upload purge complete")

			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}
