package configuration

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// CurrentVersion is the most recent configuration file version.
const CurrentVersion = "0.1"

// Configuration is a versioned registry configuration, intended to be
// provided by a yaml file, and optionally modified by environment variables.
//
// Note that yaml field names should never include _ characters, since this is
// the separator used in environment variable names.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version string `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log struct {
		// AccessLog configures access logging.
		AccessLog struct {
			// Disabled disables access logging.
			Disabled bool `yaml:"disabled,omitempty"`
			// Formatter overrides the default formatter with another. Options
			// include "text" and "json". The default is "json".
			Formatter accessLogFormat `yaml:"formatter,omitempty"`
		} `yaml:"accesslog,omitempty"`

		// Level is the granularity at which registry operations are logged.
		Level Loglevel `yaml:"level,omitempty"`

		// Formatter overrides the default formatter with another. Options
		// include "text" and "json". The default is "json".
		Formatter logFormat `yaml:"formatter,omitempty"`

		// Output sets the output destination. Options include "stderr" and
		// "stdout". The default is "stdout".
		Output logOutput `yaml:"output,omitempty"`

		// Fields allows users to specify static string fields to include in
		// the logger context.
		Fields map[string]interface{} `yaml:"fields,omitempty"`
	} `yaml:"log"`

	// Storage is the configuration for the registry's storage driver.
	Storage Storage `yaml:"storage"`

	// Database is the configuration for the item index database.
	Database Database `yaml:"database,omitempty"`

	// Redis configures the redis pool used to cache remote item lookups.
	Redis Redis `yaml:"redis,omitempty"`

	// Reporting is the configuration for error reporting.
	Reporting Reporting `yaml:"reporting,omitempty"`

	// HTTP contains configuration parameters for the registry's http
	// interface.
	HTTP HTTP `yaml:"http,omitempty"`

	// Repositories declares the local, remote and virtual repositories served
	// by this node.
	Repositories Repositories `yaml:"repositories,omitempty"`

	// Metadata configures maven metadata maintenance.
	Metadata Metadata `yaml:"metadata,omitempty"`

	// Cleanup configures the background removal of unused cached items.
	Cleanup Cleanup `yaml:"cleanup,omitempty"`

	// Maintenance configures storage housekeeping.
	Maintenance Maintenance `yaml:"maintenance,omitempty"`
}

// Maintenance configures storage housekeeping.
type Maintenance struct {
	// UploadPurging removes temporary files left behind by interrupted
	// writes.
	UploadPurging struct {
		Enabled  bool          `yaml:"enabled,omitempty"`
		Age      time.Duration `yaml:"age,omitempty"`
		Interval time.Duration `yaml:"interval,omitempty"`
		DryRun   bool          `yaml:"dryrun,omitempty"`
	} `yaml:"uploadpurging,omitempty"`
}

// HTTP contains configuration parameters for the registry's http interface.
type HTTP struct {
	// Addr specifies the bind address for the registry instance.
	Addr string `yaml:"addr,omitempty"`

	// Net specifies the net portion of the bind address. A default empty
	// value means tcp.
	Net string `yaml:"net,omitempty"`

	// Host specifies an externally-reachable address for the registry, as a
	// fully qualified URL.
	Host string `yaml:"host,omitempty"`

	// Prefix is the path prefix under which all routes are mounted.
	Prefix string `yaml:"prefix,omitempty"`

	// NodeID identifies this node in the origin header sent to remote
	// repositories. Requests carrying it back are treated as resolution
	// loops.
	NodeID string `yaml:"nodeid,omitempty"`

	// DrainTimeout is the amount of time to wait for connections to drain
	// before shutting down when registry receives a stop signal.
	DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`

	// TLS instructs the http server to listen with a TLS configuration.
	TLS struct {
		Certificate string   `yaml:"certificate,omitempty"`
		Key         string   `yaml:"key,omitempty"`
		ClientCAs   []string `yaml:"clientcas,omitempty"`
		MinimumTLS  string   `yaml:"minimumtls,omitempty"`

		// LetsEncrypt is used to configuration setting up TLS through
		// Let's Encrypt instead of manually specifying certificate and key.
		LetsEncrypt struct {
			CacheFile string   `yaml:"cachefile,omitempty"`
			Email     string   `yaml:"email,omitempty"`
			Hosts     []string `yaml:"hosts,omitempty"`
		} `yaml:"letsencrypt,omitempty"`
	} `yaml:"tls,omitempty"`

	// Debug configures the http debug interface, if specified.
	Debug struct {
		// Addr specifies the bind address for the debug server.
		Addr string `yaml:"addr,omitempty"`
		// Prometheus configures the Prometheus telemetry endpoint.
		Prometheus struct {
			Enabled bool   `yaml:"enabled,omitempty"`
			Path    string `yaml:"path,omitempty"`
		} `yaml:"prometheus,omitempty"`
		// Pprof configures the pprof endpoints.
		Pprof struct {
			Enabled bool `yaml:"enabled,omitempty"`
		} `yaml:"pprof,omitempty"`
	} `yaml:"debug,omitempty"`

	// HTTP2 configuration options
	HTTP2 struct {
		// Specifies whether the registry should disallow clients attempting
		// to connect via http2. If set to true, only http/1.1 is supported.
		Disabled bool `yaml:"disabled,omitempty"`
	} `yaml:"http2,omitempty"`
}

// Database is the configuration for the item index database.
type Database struct {
	// Enabled can be used to enable or bypass the index database.
	Enabled bool `yaml:"enabled"`
	// Host is the database server hostname.
	Host string `yaml:"host"`
	// Port is the database server port.
	Port int `yaml:"port"`
	// User is the database username.
	User string `yaml:"user"`
	// Password is the database password.
	Password string `yaml:"password"`
	// DBName is the database name.
	DBName string `yaml:"dbname"`
	// SSLMode is the SSL mode. See https://www.postgresql.org/docs/current/libpq-ssl.html#LIBPQ-SSL-SSLMODE-STATEMENTS.
	SSLMode string `yaml:"sslmode"`
	// SSLCert is the PEM encoded certificate file path.
	SSLCert string `yaml:"sslcert,omitempty"`
	// SSLKey is the PEM encoded key file path.
	SSLKey string `yaml:"sslkey,omitempty"`
	// SSLRootCert is the PEM encoded root certificate file path.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`
	// ConnectTimeout is the maximum wait for connection.
	ConnectTimeout time.Duration `yaml:"connecttimeout,omitempty"`
	// Pool configures the database connection pool.
	Pool struct {
		// MaxIdle configures the maximum number of idle connections in the pool.
		MaxIdle int `yaml:"maxidle,omitempty"`
		// MaxOpen configures the maximum number of open connections in the pool.
		MaxOpen int `yaml:"maxopen,omitempty"`
		// MaxLifetime sets the maximum amount of time a connection may be reused.
		MaxLifetime time.Duration `yaml:"maxlifetime,omitempty"`
	} `yaml:"pool,omitempty"`
}

// Redis configures the redis pool available to the registry.
type Redis struct {
	// Enabled toggles the redis backed item info cache.
	Enabled bool `yaml:"enabled,omitempty"`
	// Addr specifies the redis instance available to the application. For
	// Sentinel, it should be a list of host:port pairs separated by commas.
	Addr string `yaml:"addr,omitempty"`
	// MainName specifies the main server name, only for Sentinel.
	MainName string `yaml:"mainname,omitempty"`
	// Password string to use when making a connection.
	Password string `yaml:"password,omitempty"`
	// DB specifies the database to connect to on the redis instance.
	DB int `yaml:"db,omitempty"`
	// DialTimeout is the timeout for connecting to a new connection.
	DialTimeout time.Duration `yaml:"dialtimeout,omitempty"`
	// ReadTimeout is the timeout for reading data.
	ReadTimeout time.Duration `yaml:"readtimeout,omitempty"`
	// WriteTimeout is the timeout for writing data.
	WriteTimeout time.Duration `yaml:"writetimeout,omitempty"`
	// TLS configures settings for redis in-transit encryption.
	TLS struct {
		Enabled  bool `yaml:"enabled,omitempty"`
		Insecure bool `yaml:"insecure,omitempty"`
	} `yaml:"tls,omitempty"`
	// Pool configures the behavior of the redis connection pool.
	Pool struct {
		// Size is the maximum number of socket connections.
		Size int `yaml:"size,omitempty"`
		// MaxLifetime is the connection age at which client retires a
		// connection.
		MaxLifetime time.Duration `yaml:"maxlifetime,omitempty"`
		// IdleTimeout sets the amount time to wait before closing inactive
		// connections.
		IdleTimeout time.Duration `yaml:"idletimeout,omitempty"`
	} `yaml:"pool,omitempty"`
}

// Reporting defines error reporting methods.
type Reporting struct {
	// Sentry configures error reporting for Sentry (sentry.io).
	Sentry SentryReporting `yaml:"sentry,omitempty"`
}

// SentryReporting configures error reporting for Sentry (sentry.io).
type SentryReporting struct {
	// Enabled is true if errors should be reported to Sentry.
	Enabled bool `yaml:"enabled,omitempty"`
	// DSN is the Sentry DSN.
	DSN string `yaml:"dsn,omitempty"`
	// Environment is the Sentry environment.
	Environment string `yaml:"environment,omitempty"`
}

// Repositories declares every repository served by the registry. Resolution
// consults them in declaration order.
type Repositories struct {
	Local   []LocalRepository   `yaml:"local,omitempty"`
	Remote  []RemoteRepository  `yaml:"remote,omitempty"`
	Virtual []VirtualRepository `yaml:"virtual,omitempty"`
}

// LocalRepository is a repository hosting deployed items.
type LocalRepository struct {
	Key string `yaml:"key"`
	// HandleReleases defaults to true when omitted.
	HandleReleases *bool `yaml:"handlereleases,omitempty"`
	// HandleSnapshots defaults to true when omitted.
	HandleSnapshots *bool `yaml:"handlesnapshots,omitempty"`
}

// Releases reports whether release items are served.
func (r LocalRepository) Releases() bool { return boolOrTrue(r.HandleReleases) }

// Snapshots reports whether snapshot items are served.
func (r LocalRepository) Snapshots() bool { return boolOrTrue(r.HandleSnapshots) }

// RemoteRepository proxies an upstream maven repository.
type RemoteRepository struct {
	Key             string `yaml:"key"`
	URL             string `yaml:"url"`
	HandleReleases  *bool  `yaml:"handlereleases,omitempty"`
	HandleSnapshots *bool  `yaml:"handlesnapshots,omitempty"`
	// StoreLocally makes fetched items land in the "<key>-cache" repository.
	StoreLocally bool `yaml:"storelocally,omitempty"`
	// RetrievalCachePeriod is how long a successful upstream lookup is
	// remembered.
	RetrievalCachePeriod time.Duration `yaml:"retrievalcacheperiod,omitempty"`
	// MissedRetrievalCachePeriod is how long a failed upstream lookup is
	// remembered.
	MissedRetrievalCachePeriod time.Duration `yaml:"missedretrievalcacheperiod,omitempty"`
	// SocketTimeout bounds every upstream request.
	SocketTimeout time.Duration `yaml:"sockettimeout,omitempty"`
	// MaxRequestsPerSecond throttles upstream requests, 0 disables throttling.
	MaxRequestsPerSecond float64 `yaml:"maxrequestspersecond,omitempty"`
	// MaxRetries is the number of retries for lookups failing with a server
	// error.
	MaxRetries int `yaml:"maxretries,omitempty"`
}

// Releases reports whether release items are served.
func (r RemoteRepository) Releases() bool { return boolOrTrue(r.HandleReleases) }

// Snapshots reports whether snapshot items are served.
func (r RemoteRepository) Snapshots() bool { return boolOrTrue(r.HandleSnapshots) }

// CacheKey is the key of the repository storing items fetched through r.
func (r RemoteRepository) CacheKey() string { return r.Key + "-cache" }

// VirtualRepository aggregates other repositories under a single key.
type VirtualRepository struct {
	Key          string   `yaml:"key"`
	Repositories []string `yaml:"repositories"`
}

// Metadata configures maven metadata maintenance.
type Metadata struct {
	// VersionComparator names the comparator used to order metadata
	// versions. Unknown names fall back to "default".
	VersionComparator string `yaml:"versioncomparator,omitempty"`
}

// Cleanup configures the background removal of unused cached items.
type Cleanup struct {
	// Enabled starts the cleanup agent.
	Enabled bool `yaml:"enabled,omitempty"`
	// Interval is the pause between cleanup runs.
	Interval time.Duration `yaml:"interval,omitempty"`
	// MaxBackoff caps the pause applied after failed runs.
	MaxBackoff time.Duration `yaml:"maxbackoff,omitempty"`
	// NoIdleBackoff disables the pause between runs that found nothing to do.
	NoIdleBackoff bool `yaml:"noidlebackoff,omitempty"`
	// CheckEvery is the number of items processed between cancellation
	// checks.
	CheckEvery int `yaml:"checkevery,omitempty"`
	// Policies lists the cache repositories to clean.
	Policies []CleanupPolicy `yaml:"policies,omitempty"`
}

// CleanupPolicy removes items of a cache repository not downloaded within
// UnusedPeriod.
type CleanupPolicy struct {
	Repository   string        `yaml:"repository"`
	UnusedPeriod time.Duration `yaml:"unusedperiod"`
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

// Parameters defines a key-value parameters mapping.
type Parameters map[string]interface{}

// Storage defines the configuration for registry object storage.
type Storage map[string]Parameters

// Type returns the storage driver type, such as filesystem or s3.
func (storage Storage) Type() string {
	var storageType []string

	// Return only key in this map
	for k := range storage {
		storageType = append(storageType, k)
	}
	if len(storageType) > 1 {
		panic("multiple storage drivers specified in configuration or environment: " + strings.Join(storageType, ", "))
	}
	if len(storageType) == 1 {
		return storageType[0]
	}
	return ""
}

// Parameters returns the Parameters map for a Storage configuration.
func (storage Storage) Parameters() Parameters {
	return storage[storage.Type()]
}

// setParameter changes the parameter at the provided key to the new value.
func (storage Storage) setParameter(key string, value interface{}) {
	storage[storage.Type()][key] = value
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Unmarshals a
// single item map into a Storage or a string into a Storage type with no
// parameters.
func (storage *Storage) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var storageMap map[string]Parameters
	err := unmarshal(&storageMap)
	if err == nil {
		if len(storageMap) > 1 {
			types := make([]string, 0, len(storageMap))
			for k := range storageMap {
				types = append(types, k)
			}
			return fmt.Errorf("must provide exactly one storage type. provided: %v", types)
		}
		*storage = storageMap
		return nil
	}

	var storageType string
	err = unmarshal(&storageType)
	if err == nil {
		*storage = Storage{storageType: Parameters{}}
		return nil
	}

	return err
}

// MarshalYAML implements the yaml.Marshaler interface.
func (storage Storage) MarshalYAML() (interface{}, error) {
	if storage.Parameters() == nil {
		return storage.Type(), nil
	}
	return map[string]Parameters(storage), nil
}

// Parse parses an input configuration yaml document into a Configuration
// struct. Environment variables prefixed with REGISTRY_ override yaml values,
// for example REGISTRY_LOG_LEVEL=debug overrides log.level.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := ioutil.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := new(Configuration)
	if err := yaml.Unmarshal(in, config); err != nil {
		return nil, err
	}
	if config.Version == "" {
		return nil, fmt.Errorf("please specify a configuration version. Current version is %s", CurrentVersion)
	}
	if config.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported configuration version %q, expected %q", config.Version, CurrentVersion)
	}

	if err := overwriteFields(config, "REGISTRY"); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return config, nil
}

func (config *Configuration) validate() error {
	if config.Storage.Type() == "" {
		return fmt.Errorf("no storage configuration provided")
	}

	seen := make(map[string]struct{})
	register := func(key string) error {
		if key == "" {
			return fmt.Errorf("repository key must not be empty")
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate repository key %q", key)
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, r := range config.Repositories.Local {
		if err := register(r.Key); err != nil {
			return err
		}
	}
	for _, r := range config.Repositories.Remote {
		if r.URL == "" {
			return fmt.Errorf("remote repository %q has no url", r.Key)
		}
		if err := register(r.Key); err != nil {
			return err
		}
		if r.StoreLocally {
			if err := register(r.CacheKey()); err != nil {
				return err
			}
		}
	}
	for _, r := range config.Repositories.Virtual {
		if err := register(r.Key); err != nil {
			return err
		}
	}
	for _, r := range config.Repositories.Virtual {
		for _, member := range r.Repositories {
			if _, ok := seen[member]; !ok {
				return fmt.Errorf("virtual repository %q references unknown repository %q", r.Key, member)
			}
		}
	}
	for _, p := range config.Cleanup.Policies {
		if p.UnusedPeriod <= 0 {
			return fmt.Errorf("cleanup policy for %q must have a positive unused period", p.Repository)
		}
	}

	return nil
}

func (config *Configuration) applyDefaults() {
	if config.Log.Level == "" {
		config.Log.Level = defaultLogLevel
	}
	if config.Log.Formatter == "" {
		config.Log.Formatter = defaultLogFormatter
	}
	if config.Log.Output == "" {
		config.Log.Output = defaultLogOutput
	}
	if config.Log.AccessLog.Formatter == "" {
		config.Log.AccessLog.Formatter = defaultAccessLogFormat
	}
	if config.HTTP.NodeID == "" {
		config.HTTP.NodeID = defaultNodeID
	}
	if config.Cleanup.Interval == 0 {
		config.Cleanup.Interval = defaultCleanupInterval
	}
	if config.Cleanup.CheckEvery == 0 {
		config.Cleanup.CheckEvery = defaultCleanupCheckEvery
	}
	if config.Maintenance.UploadPurging.Age == 0 {
		config.Maintenance.UploadPurging.Age = defaultUploadPurgingAge
	}
	if config.Maintenance.UploadPurging.Interval == 0 {
		config.Maintenance.UploadPurging.Interval = defaultUploadPurgingInterval
	}
	for i := range config.Repositories.Remote {
		r := &config.Repositories.Remote[i]
		if r.RetrievalCachePeriod == 0 {
			r.RetrievalCachePeriod = defaultRetrievalCachePeriod
		}
		if r.MissedRetrievalCachePeriod == 0 {
			r.MissedRetrievalCachePeriod = defaultMissedRetrievalCachePeriod
		}
		if r.SocketTimeout == 0 {
			r.SocketTimeout = defaultSocketTimeout
		}
	}
}

const (
	defaultNodeID                     = "registry"
	defaultCleanupInterval            = time.Hour
	defaultCleanupCheckEvery          = 100
	defaultRetrievalCachePeriod       = 10 * time.Minute
	defaultMissedRetrievalCachePeriod = 30 * time.Second
	defaultSocketTimeout              = 15 * time.Second
	defaultUploadPurgingAge           = 168 * time.Hour
	defaultUploadPurgingInterval      = 24 * time.Hour
)
