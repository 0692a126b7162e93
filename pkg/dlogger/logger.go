// Package dlogger builds the zap loggers of revstore commands, with log levels and encodings
package dlogger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"
)

const (
	// EncodingJSON logs structured entries, one json object per line
	EncodingJSON = "json"

	// EncodingConsole logs human readable entries, with colored levels
	EncodingConsole = "console"
)

// Option for the logger
type Option func(*options)

type options struct {
	encoding string
	fields   []zap.Field
	outputs  []string
}

// Fields are attached to every entry, e.g. the name of the running command
func Fields(fields ...zap.Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// Encoding of the entries: json (default) or console
func Encoding(encoding string) Option {
	return func(o *options) {
		if encoding != "" {
			o.encoding = encoding
		}
	}
}

// Outputs sets the paths entries are written to. Defaults to stderr.
func Outputs(paths ...string) Option {
	return func(o *options) {
		if len(paths) > 0 {
			o.outputs = paths
		}
	}
}

// GetLogger returns a zap logger with the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	o := options{encoding: EncodingJSON, outputs: []string{"stderr"}}
	for _, apply := range opts {
		apply(&o)
	}
	if logLevel == LogLevelNone || logLevel == "" {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	var zapConfig zap.Config
	switch o.encoding {
	case EncodingJSON:
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "ts"
	case EncodingConsole:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.Development = false
	default:
		return nil, fmt.Errorf("unknown log encoding %q", o.encoding)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.OutputPaths = o.outputs
	zapConfig.ErrorOutputPaths = o.outputs

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(o.fields...), nil
}
