package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldRunID     = "run_id"
	FieldFile      = "file"
	FieldFilter    = "filter"
	FieldPostflash = "postflash"
	FieldSigclip   = "sigclip"
	FieldCount     = "count"
	FieldDest      = "dest"
	FieldPattern   = "pattern"
	FieldError     = "error"
	FieldErrorKind = "error_kind"
	FieldDuration  = "duration_ms"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// No-op until Initialize is called, so library code and tests can log freely
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. verbosity 0 logs at info, 1 or more at debug.
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput

	level := zap.InfoLevel
	if verbosity > 0 {
		level = zap.DebugLevel
	}

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		zapLogger, err = config.Build()
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderConfig),
				zapcore.AddSync(os.Stdout),
				level,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// With returns a child of the global logger carrying the given key-value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return Logger.With(keysAndValues...)
}

// Sync flushes buffered log entries; errors from syncing stdout are ignored.
func Sync() {
	_ = Logger.Sync()
}
