package datastore

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/mavenhub/registry/configuration"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	defaultLogger := logrus.New()
	defaultLogger.SetOutput(ioutil.Discard)

	l := logrus.NewEntry(logrus.New())
	poolConfig := &PoolConfig{
		MaxIdle:     1,
		MaxOpen:     2,
		MaxLifetime: 1 * time.Minute,
	}

	tests := []struct {
		name           string
		opts           []OpenOption
		wantLogger     *logrus.Entry
		wantPoolConfig *PoolConfig
	}{
		{
			name:           "empty",
			opts:           nil,
			wantLogger:     logrus.NewEntry(defaultLogger),
			wantPoolConfig: &PoolConfig{},
		},
		{
			name:           "with logger",
			opts:           []OpenOption{WithLogger(l)},
			wantLogger:     l,
			wantPoolConfig: &PoolConfig{},
		},
		{
			name:           "with pool config",
			opts:           []OpenOption{WithPoolConfig(poolConfig)},
			wantLogger:     logrus.NewEntry(defaultLogger),
			wantPoolConfig: poolConfig,
		},
		{
			name:           "combined",
			opts:           []OpenOption{WithLogger(l), WithPoolConfig(poolConfig)},
			wantLogger:     l,
			wantPoolConfig: poolConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyOptions(tt.opts)
			require.Equal(t, tt.wantLogger.Logger.Out, got.logger.Logger.Out)
			require.Equal(t, tt.wantLogger.Logger.Level, got.logger.Logger.Level)
			require.Equal(t, tt.wantLogger.Logger.Formatter, got.logger.Logger.Formatter)
			require.Equal(t, tt.wantPoolConfig, got.pool)
		})
	}
}

func TestWithLogLevel(t *testing.T) {
	tests := []struct {
		in   configuration.Loglevel
		want pgx.LogLevel
	}{
		{configuration.LogLevelTrace, pgx.LogLevelTrace},
		{configuration.LogLevelDebug, pgx.LogLevelDebug},
		{configuration.LogLevelInfo, pgx.LogLevelInfo},
		{configuration.LogLevelWarn, pgx.LogLevelWarn},
		{configuration.LogLevelError, pgx.LogLevelError},
		{"", pgx.LogLevelError},
		{"panic", pgx.LogLevelError},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got := applyOptions([]OpenOption{WithLogLevel(tt.in)})
			require.IsType(t, pgx.LogLevel(0), got.logLevel)
			require.Equal(t, tt.want, got.logLevel)
			require.Equal(t, tt.want.String(), got.logLevel.String())
		})
	}
}

func TestQueryLogger_Log(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	l := &queryLogger{logrus.NewEntry(logger)}

	l.Log(context.Background(), pgx.LogLevelInfo, "Query", map[string]interface{}{
		"sql":      "SELECT\n\t\tnode_id\n\tFROM   nodes",
		"time":     1500 * time.Millisecond,
		"rowCount": 3,
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.InfoLevel, entry.Level)
	require.Equal(t, "Query", entry.Message)
	require.Equal(t, "SELECT node_id FROM nodes", entry.Data["sql"])
	require.Equal(t, int64(1500), entry.Data["duration_ms"])
	require.Equal(t, 3, entry.Data["row_count"])
	require.NotContains(t, entry.Data, "time")
	require.NotContains(t, entry.Data, "rowCount")
}

func TestQueryLogger_LogSilencedBelowDebug(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	l := &queryLogger{logrus.NewEntry(logger)}

	l.Log(context.Background(), pgx.LogLevelInfo, "Query", nil)
	require.Empty(t, hook.AllEntries())

	l.Log(context.Background(), pgx.LogLevelError, "Query", nil)
	require.Len(t, hook.AllEntries(), 1)
}
