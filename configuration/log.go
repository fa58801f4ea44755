package configuration

import (
	"fmt"
	"strings"
)

// Loglevel is the level at which registry operations are logged.
type Loglevel string

// Supported log levels.
const (
	LogLevelError Loglevel = "error"
	LogLevelWarn  Loglevel = "warn"
	LogLevelInfo  Loglevel = "info"
	LogLevelDebug Loglevel = "debug"
	LogLevelTrace Loglevel = "trace"

	defaultLogLevel = LogLevelInfo
)

var logLevels = []Loglevel{
	LogLevelError,
	LogLevelWarn,
	LogLevelInfo,
	LogLevelDebug,
	LogLevelTrace,
}

func (l Loglevel) String() string { return string(l) }

func (l Loglevel) isValid() bool {
	for _, lvl := range logLevels {
		if l == lvl {
			return true
		}
	}
	return false
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (l *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	lvl := Loglevel(strings.ToLower(s))
	if !lvl.isValid() {
		return fmt.Errorf("invalid log level %q, must be one of %q", lvl, logLevels)
	}

	*l = lvl
	return nil
}

type logOutput string

const (
	logOutputStdout logOutput = "stdout"
	logOutputStderr logOutput = "stderr"

	defaultLogOutput = logOutputStdout
)

var logOutputs = []logOutput{logOutputStdout, logOutputStderr}

func (out logOutput) String() string { return string(out) }

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (out *logOutput) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	o := logOutput(strings.ToLower(s))
	for _, valid := range logOutputs {
		if o == valid {
			*out = o
			return nil
		}
	}

	return fmt.Errorf("invalid log output %q, must be one of %q", o, logOutputs)
}

type logFormat string

const (
	logFormatText logFormat = "text"
	logFormatJSON logFormat = "json"

	defaultLogFormatter = logFormatJSON
)

var logFormats = []logFormat{logFormatText, logFormatJSON}

func (f logFormat) String() string { return string(f) }

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (f *logFormat) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	format := logFormat(strings.ToLower(s))
	for _, valid := range logFormats {
		if format == valid {
			*f = format
			return nil
		}
	}

	return fmt.Errorf("invalid log format %q, must be one of %q", format, logFormats)
}

type accessLogFormat string

const (
	accessLogFormatText accessLogFormat = "text"
	accessLogFormatJSON accessLogFormat = "json"

	defaultAccessLogFormat = accessLogFormatJSON
)

var accessLogFormats = []accessLogFormat{accessLogFormatText, accessLogFormatJSON}

func (f accessLogFormat) String() string { return string(f) }

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (f *accessLogFormat) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	format := accessLogFormat(strings.ToLower(s))
	for _, valid := range accessLogFormats {
		if format == valid {
			*f = format
			return nil
		}
	}

	return fmt.Errorf("invalid access log format %q, must be one of %q", format, accessLogFormats)
}
