package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// FormatConsole writes human-readable lines.
	FormatConsole = "console"
	// FormatJSON writes one JSON object per line for log collectors.
	FormatJSON = "json"
)

var (
	// errUnknownFormat is returned for encodings other than console and json.
	errUnknownFormat = errors.New("unknown log format")
	// errUnknownLevel is returned for unparsable levels.
	errUnknownLevel = errors.New("unknown log level")
)

var (
	// global is the shared logger instance used throughout the application.
	//nolint:gochecknoglobals // Logger is used all over the project, so it's okay.
	global *zap.SugaredLogger
	// defaultLevel is the minimum log level for messages to be processed.
	//nolint:gochecknoglobals //  If the logging level is not set, the application will have no logs.
	defaultLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() { //nolint:gochecknoinits // If the logging level is not set, the application will have no logs.
	SetLogger(New(defaultLevel))
}

// encoderConfig is shared by both encodings.
func encoderConfig() zapcore.EncoderConfig {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "message",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// New creates a console logger writing to stdout.
// If the logging level is not provided, the shared atomic level is used.
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	config := encoderConfig()
	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.ConsoleSeparator = ", "

	return newWithEncoder(zapcore.NewConsoleEncoder(config), level, options...)
}

// NewJSON creates a JSON logger writing to stdout.
func NewJSON(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	return newWithEncoder(zapcore.NewJSONEncoder(encoderConfig()), level, options...)
}

func newWithEncoder(encoder zapcore.Encoder, level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)

	return zap.New(core, options...).Sugar()
}

// Configure replaces the global logger with one of the given format and
// sets the global level.
func Configure(level, format string) error {
	lvl, ok := ParseLogLevel(level)
	if !ok {
		return fmt.Errorf("%q: %w", level, errUnknownLevel)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		SetLogger(New(defaultLevel))
	case FormatJSON:
		SetLogger(NewJSON(defaultLevel))
	default:
		return fmt.Errorf("%q: %w", format, errUnknownFormat)
	}

	SetLevel(lvl)

	return nil
}

// ValidFormat reports whether format is accepted by Configure.
func ValidFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Level returns the current logging level of the global logger.
func Level() zapcore.Level {
	return defaultLevel.Level()
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger sets the global logger.
// This function is not thread-safe.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// SetLevel sets the log level for the global logger.
func SetLevel(level zapcore.Level) {
	//nolint: errcheck // No need to check the error here.
	defer global.Sync()

	defaultLevel.SetLevel(level)
}

// DebugKV writes a message and key-value pairs
// at the debug level using the logger from the context.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info writes an information level message using the logger from the context.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// InfoKV writes a message and key-value pairs
// at the information level using the logger from the context.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// WarnKV writes a message and key-value pairs
// at the warning level using the logger from the context.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// ErrorKV writes a message and key-value pairs
// at the error level using the logger from the context.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}
