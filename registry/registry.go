package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mavenhub/registry/configuration"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/handlers"
	"github.com/mavenhub/registry/version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
	logkit "gitlab.com/gitlab-org/labkit/log"
	"gitlab.com/gitlab-org/labkit/monitoring"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

var tlsLookup = map[string]uint16{
	"":       tls.VersionTLS12,
	"tls1.2": tls.VersionTLS12,
	"tls1.3": tls.VersionTLS13,
}

// ServeCmd is a cobra command for running the registry.
var ServeCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "`serve` hosts, proxies and aggregates maven repositories",
	Long:  "`serve` hosts, proxies and aggregates maven repositories.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := dcontext.WithVersion(dcontext.Background(), version.Version)

		config, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			cmd.Usage()
			os.Exit(1)
		}

		registry, err := NewRegistry(ctx, config)
		if err != nil {
			log.Fatalln(err)
		}

		go func() {
			opts := configureMonitoring(config)
			if err := monitoring.Start(opts...); err != nil {
				log.WithError(err).Error("unable to start monitoring service")
			}
		}()

		if err = registry.ListenAndServe(); err != nil {
			log.Fatalln(err)
		}
	},
}

// A Registry represents a complete instance of the registry.
type Registry struct {
	config *configuration.Configuration
	app    *handlers.App
	server *http.Server
	cancel context.CancelFunc
}

// NewRegistry creates a new registry from a context and configuration struct.
// Background agents of the registry run until the server stops.
func NewRegistry(ctx context.Context, config *configuration.Configuration) (*Registry, error) {
	var err error
	ctx, err = configureLogging(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	app, err := handlers.NewApp(ctx, config)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("configuring application: %w", err)
	}

	handler := panicHandler(app)
	if handler, err = configureReporting(config, handler); err != nil {
		cancel()
		return nil, fmt.Errorf("configuring reporting services: %w", err)
	}
	handler = alive("/", handler)
	if handler, err = configureAccessLogging(config, handler); err != nil {
		cancel()
		return nil, fmt.Errorf("configuring access logger: %w", err)
	}
	handler = correlation.InjectCorrelationID(handler)

	server := &http.Server{
		Handler: handler,
	}

	return &Registry{
		app:    app,
		config: config,
		server: server,
		cancel: cancel,
	}, nil
}

// Channel to capture signals used to gracefully shutdown the registry.
// It is global to ease unit testing
var quit = make(chan os.Signal, 1)

// ListenAndServe runs the registry's HTTP server.
func (registry *Registry) ListenAndServe() error {
	config := registry.config

	network := config.HTTP.Net
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, config.HTTP.Addr)
	if err != nil {
		return err
	}

	if config.HTTP.TLS.Certificate != "" || config.HTTP.TLS.LetsEncrypt.CacheFile != "" {
		tlsConf, err := registry.tlsConfig()
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsConf)
		dcontext.GetLogger(registry.app).Infof("listening on %v, tls", ln.Addr())
	} else {
		dcontext.GetLogger(registry.app).Infof("listening on %v", ln.Addr())
	}

	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	serveErr := make(chan error)

	go func() {
		serveErr <- registry.server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		registry.cancel()
		return err
	case s := <-quit:
		log := log.WithFields(log.Fields{"quit_signal": s, "http_drain_timeout": config.HTTP.DrainTimeout})
		log.Info("attempting to stop server gracefully...")

		// background agents stop before the drain
		registry.cancel()

		if config.HTTP.DrainTimeout != 0 {
			log.Info("draining http connections")
			ctx, cancel := context.WithTimeout(context.Background(), config.HTTP.DrainTimeout)
			defer cancel()
			if err := registry.server.Shutdown(ctx); err != nil {
				return err
			}
		}

		log.Info("releasing application resources")
		if err := registry.app.Shutdown(); err != nil {
			return err
		}

		log.Info("graceful shutdown successful")
		return nil
	}
}

func (registry *Registry) tlsConfig() (*tls.Config, error) {
	config := registry.config

	tlsMinVersion, ok := tlsLookup[config.HTTP.TLS.MinimumTLS]
	if !ok {
		return nil, fmt.Errorf("unknown minimum TLS level %q specified for http.tls.minimumtls", config.HTTP.TLS.MinimumTLS)
	}
	if config.HTTP.TLS.MinimumTLS != "" {
		dcontext.GetLogger(registry.app).Infof("restricting TLS to %s or higher", config.HTTP.TLS.MinimumTLS)
	}

	tlsConf := &tls.Config{
		ClientAuth: tls.NoClientCert,
		NextProtos: nextProtos(config),
		MinVersion: tlsMinVersion,
	}

	if config.HTTP.TLS.LetsEncrypt.CacheFile != "" {
		if config.HTTP.TLS.Certificate != "" {
			return nil, fmt.Errorf("cannot specify both certificate and Let's Encrypt")
		}
		m := &autocert.Manager{
			HostPolicy: autocert.HostWhitelist(config.HTTP.TLS.LetsEncrypt.Hosts...),
			Cache:      autocert.DirCache(config.HTTP.TLS.LetsEncrypt.CacheFile),
			Email:      config.HTTP.TLS.LetsEncrypt.Email,
			Prompt:     autocert.AcceptTOS,
		}
		tlsConf.GetCertificate = m.GetCertificate
		tlsConf.NextProtos = append(tlsConf.NextProtos, acme.ALPNProto)
	} else {
		cert, err := tls.LoadX509KeyPair(config.HTTP.TLS.Certificate, config.HTTP.TLS.Key)
		if err != nil {
			return nil, err
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	if len(config.HTTP.TLS.ClientCAs) != 0 {
		pool := x509.NewCertPool()

		for _, ca := range config.HTTP.TLS.ClientCAs {
			caPem, err := ioutil.ReadFile(ca)
			if err != nil {
				return nil, err
			}
			if ok := pool.AppendCertsFromPEM(caPem); !ok {
				return nil, fmt.Errorf("could not add CA to pool")
			}
		}

		tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConf.ClientCAs = pool
	}

	return tlsConf, nil
}

func configureReporting(config *configuration.Configuration, h http.Handler) (http.Handler, error) {
	handler := h

	if config.Reporting.Sentry.Enabled {
		if err := errortracking.Initialize(
			errortracking.WithSentryDSN(config.Reporting.Sentry.DSN),
			errortracking.WithSentryEnvironment(config.Reporting.Sentry.Environment),
			errortracking.WithVersion(version.Version),
		); err != nil {
			return nil, fmt.Errorf("failed to configure Sentry: %w", err)
		}

		handler = errortracking.NewHandler(handler)
	}

	return handler, nil
}

// configureLogging prepares the context with a logger using the configuration.
func configureLogging(ctx context.Context, config *configuration.Configuration) (context.Context, error) {
	// no log file is involved, the returned io.Closer is a noop
	if _, err := logkit.Initialize(
		logkit.WithFormatter(config.Log.Formatter.String()),
		logkit.WithLogLevel(config.Log.Level.String()),
		logkit.WithOutputName(config.Log.Output.String()),
	); err != nil {
		return nil, err
	}

	if len(config.Log.Fields) > 0 {
		var fields []interface{}
		for k := range config.Log.Fields {
			fields = append(fields, k)
		}

		ctx = dcontext.WithValues(ctx, config.Log.Fields)
		ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx, fields...))
	}

	return ctx, nil
}

func configureAccessLogging(config *configuration.Configuration, h http.Handler) (http.Handler, error) {
	if config.Log.AccessLog.Disabled {
		return h, nil
	}

	logger := log.New()
	if _, err := logkit.Initialize(
		logkit.WithLogger(logger),
		logkit.WithFormatter(config.Log.AccessLog.Formatter.String()),
		logkit.WithOutputName(config.Log.Output.String()),
	); err != nil {
		return nil, err
	}

	return logkit.AccessLogger(h, logkit.WithAccessLogger(logger)), nil
}

func configureMonitoring(config *configuration.Configuration) []monitoring.Option {
	addr := config.HTTP.Debug.Addr
	if addr == "" {
		return []monitoring.Option{
			monitoring.WithoutMetrics(),
			monitoring.WithoutPprof(),
			monitoring.WithoutContinuousProfiling(),
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/health", healthHandler)
	log.WithFields(log.Fields{"address": addr, "path": "/debug/health"}).Info("starting health checker")

	opts := []monitoring.Option{
		monitoring.WithServeMux(mux),
		monitoring.WithListenerAddress(addr),
		monitoring.WithoutContinuousProfiling(),
	}

	if config.HTTP.Debug.Prometheus.Enabled {
		opts = append(opts,
			monitoring.WithMetricsHandlerPattern(config.HTTP.Debug.Prometheus.Path),
			monitoring.WithBuildInformation(version.Version, version.BuildTime),
			monitoring.WithBuildExtraLabels(map[string]string{
				"package":  version.Package,
				"revision": version.Revision,
			}),
		)
		log.WithFields(log.Fields{"address": addr, "path": config.HTTP.Debug.Prometheus.Path}).Info("starting Prometheus listener")
	} else {
		opts = append(opts, monitoring.WithoutMetrics())
	}

	if config.HTTP.Debug.Pprof.Enabled {
		log.WithFields(log.Fields{"address": addr, "path": "/debug/pprof/"}).Info("starting pprof listener")
	} else {
		opts = append(opts, monitoring.WithoutPprof())
	}

	return opts
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprint(w, "{}")
}

// panicHandler recovers panics raised while serving a request and forwards
// them to logrus, whose hooks may report them.
func panicHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Panic(fmt.Sprintf("%v", err))
			}
		}()
		handler.ServeHTTP(w, r)
	})
}

// alive answers 200 on path and passes every other request on. It only
// tells the server is up.
func alive(path string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == path {
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("REGISTRY_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("REGISTRY_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		return nil, fmt.Errorf("configuration path unspecified")
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configurationPath, err)
	}

	return config, nil
}

func nextProtos(config *configuration.Configuration) []string {
	if config.HTTP.HTTP2.Disabled {
		return []string{"http/1.1"}
	}
	return []string{"h2", "http/1.1"}
}
