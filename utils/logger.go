package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger initializes the global logger. level accepts zap level names;
// debug forces debug level regardless.
func InitLogger(level string, debug bool) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		lvl := zapcore.InfoLevel
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = zapcore.InfoLevel
		}
		if debug {
			lvl = zapcore.DebugLevel
		}
		config.Level = zap.NewAtomicLevelAt(lvl)

		config.OutputPaths = []string{"stdout", "cyclearb.log"}
		config.ErrorOutputPaths = []string{"stderr", "cyclearb-error.log"}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger("info", false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
