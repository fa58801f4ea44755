// Package datastore indexes stored items, their properties and download
// statistics in PostgreSQL.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/mavenhub/registry/configuration"
	"github.com/mavenhub/registry/registry/datastore/migrations"
	"github.com/sirupsen/logrus"
)

const driverName = "pgx"

// Queryer is the common interface to execute queries on a database.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DB is a database handle that implements Queryer.
type DB struct {
	*sql.DB
	dsn *DSN
}

// BeginTx wraps sql.Tx from the inner sql.DB within a datastore.Tx.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)

	return &Tx{tx}, err
}

// Address returns the host:port of the database server.
func (db *DB) Address() string {
	return db.dsn.Address()
}

// MigrateUp applies all pending schema migrations.
func (db *DB) MigrateUp() (int, error) {
	return migrations.NewMigrator(db.DB).Up()
}

// MigrateDown reverts all applied schema migrations.
func (db *DB) MigrateDown() (int, error) {
	return migrations.NewMigrator(db.DB).Down()
}

// MigrateVersion returns the version of the last applied migration, empty
// when none was applied.
func (db *DB) MigrateVersion() (string, error) {
	return migrations.NewMigrator(db.DB).Version()
}

// Tx is a database transaction that implements Queryer.
type Tx struct {
	*sql.Tx
}

// DSN represents the Data Source Name parameters for a DB connection.
type DSN struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	SSLCert        string
	SSLKey         string
	SSLRootCert    string
	ConnectTimeout time.Duration
}

// NewDSN builds the DSN of the configured index database.
func NewDSN(config configuration.Database) *DSN {
	return &DSN{
		Host:           config.Host,
		Port:           config.Port,
		User:           config.User,
		Password:       config.Password,
		DBName:         config.DBName,
		SSLMode:        config.SSLMode,
		SSLCert:        config.SSLCert,
		SSLKey:         config.SSLKey,
		SSLRootCert:    config.SSLRootCert,
		ConnectTimeout: config.ConnectTimeout,
	}
}

// String builds the keyword/value connection string of a DSN.
func (dsn *DSN) String() string {
	var port, connectTimeout string
	if dsn.Port > 0 {
		port = strconv.Itoa(dsn.Port)
	}
	if dsn.ConnectTimeout > 0 {
		connectTimeout = fmt.Sprintf("%.0f", dsn.ConnectTimeout.Seconds())
	}

	params := make([]string, 0, 10)
	for _, kv := range [][2]string{
		{"host", dsn.Host},
		{"port", port},
		{"user", dsn.User},
		{"password", dsn.Password},
		{"dbname", dsn.DBName},
		{"sslmode", dsn.SSLMode},
		{"sslcert", dsn.SSLCert},
		{"sslkey", dsn.SSLKey},
		{"sslrootcert", dsn.SSLRootCert},
		{"connect_timeout", connectTimeout},
	} {
		if kv[1] == "" {
			continue
		}
		params = append(params, kv[0]+"="+dsnEscaper.Replace(kv[1]))
	}

	return strings.Join(params, " ")
}

var dsnEscaper = strings.NewReplacer(`'`, `\'`, ` `, `\ `)

// Address returns the host:port segment of a DSN.
func (dsn *DSN) Address() string {
	return net.JoinHostPort(dsn.Host, strconv.Itoa(dsn.Port))
}

// PoolConfig holds the connection pool limits.
type PoolConfig struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
}

type openOpts struct {
	logger   *logrus.Entry
	logLevel pgx.LogLevel
	pool     *PoolConfig
}

// OpenOption is used to pass options to Open.
type OpenOption func(*openOpts)

// WithLogger configures the logger for the database connection driver.
func WithLogger(l *logrus.Entry) OpenOption {
	return func(opts *openOpts) {
		opts.logger = l
	}
}

// WithLogLevel maps a registry log level onto the driver log level.
func WithLogLevel(l configuration.Loglevel) OpenOption {
	lvl := pgx.LogLevel(pgx.LogLevelError)
	switch l {
	case configuration.LogLevelTrace:
		lvl = pgx.LogLevelTrace
	case configuration.LogLevelDebug:
		lvl = pgx.LogLevelDebug
	case configuration.LogLevelInfo:
		lvl = pgx.LogLevelInfo
	case configuration.LogLevelWarn:
		lvl = pgx.LogLevelWarn
	}

	return func(opts *openOpts) {
		opts.logLevel = lvl
	}
}

// WithPoolConfig configures the settings for the database connection pool.
func WithPoolConfig(c *PoolConfig) OpenOption {
	return func(opts *openOpts) {
		opts.pool = c
	}
}

func applyOptions(opts []OpenOption) openOpts {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)

	config := openOpts{
		logger: logrus.NewEntry(log),
		pool:   &PoolConfig{},
	}

	for _, v := range opts {
		v(&config)
	}

	return config
}

type queryLogger struct {
	*logrus.Entry
}

// collapses whitespace runs of logged statements
var whitespace = regexp.MustCompile(`\s+`)

// Log implements the pgx.Logger interface.
func (l *queryLogger) Log(_ context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	// only warnings and errors get through below debug
	if !l.Logger.IsLevelEnabled(logrus.DebugLevel) && level != pgx.LogLevelWarn && level != pgx.LogLevelError {
		return
	}

	log := l.Entry
	if data != nil {
		if stmt, ok := data["sql"]; ok {
			data["sql"] = whitespace.ReplaceAllString(fmt.Sprintf("%v", stmt), " ")
		}
		if d, ok := data["time"].(time.Duration); ok {
			data["duration_ms"] = d.Milliseconds()
			delete(data, "time")
		}
		if n, ok := data["rowCount"]; ok {
			data["row_count"] = n
			delete(data, "rowCount")
		}
		log = l.WithFields(data)
	}

	switch level {
	case pgx.LogLevelTrace:
		log.Trace(msg)
	case pgx.LogLevelDebug:
		log.Debug(msg)
	case pgx.LogLevelInfo:
		log.Info(msg)
	case pgx.LogLevelWarn:
		log.Warn(msg)
	case pgx.LogLevelError:
		log.Error(msg)
	default:
		log.WithField("invalid_log_level", level).Error(msg)
	}
}

// Open creates a database connection handler and checks the server is
// reachable.
func Open(dsn *DSN, opts ...OpenOption) (*DB, error) {
	config := applyOptions(opts)
	pgxConfig, err := pgx.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	pgxConfig.Logger = &queryLogger{config.logger}
	pgxConfig.LogLevel = config.logLevel

	db, err := sql.Open(driverName, stdlib.RegisterConnConfig(pgxConfig))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.pool.MaxOpen)
	db.SetMaxIdleConns(config.pool.MaxIdle)
	db.SetConnMaxLifetime(config.pool.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dsn.Address(), err)
	}
	return &DB{db, dsn}, nil
}

// OpenFromConfig opens the index database described by config.
func OpenFromConfig(config *configuration.Configuration, log *logrus.Entry) (*DB, error) {
	return Open(NewDSN(config.Database),
		WithLogger(log),
		WithLogLevel(config.Log.Level),
		WithPoolConfig(&PoolConfig{
			MaxIdle:     config.Database.Pool.MaxIdle,
			MaxOpen:     config.Database.Pool.MaxOpen,
			MaxLifetime: config.Database.Pool.MaxLifetime,
		}),
	)
}
