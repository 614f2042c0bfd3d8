package internal

import (
	"io"
	"os"
	"strings"
	"sync"
)

var (
	globalLogger *SecureLogger
	loggerMutex  sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration.
func InitLogger(cfg *Config) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	level := parseLogLevel(cfg.LogLevel)

	var output io.Writer = os.Stderr
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return NewValidationError("log_file", "failed to open log file").
				WithSuggestion("check file permissions and path validity").
				WithContext("file", cfg.LogFile).
				WithContext("error", err.Error())
		}
		output = file
	}

	globalLogger = NewSecureLogger(output, level, cfg.EnableDebug, cfg.QuietMode)
	return nil
}

// GetLogger returns the global logger instance, lazily creating a default
// one if InitLogger was never called (e.g. in tests).
func GetLogger() *SecureLogger {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()

	if globalLogger == nil {
		globalLogger = NewDefaultLogger(false, false)
	}
	return globalLogger
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return LogLevelTrace
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func LogTrace(format string, args ...interface{}) { GetLogger().Trace(format, args...) }
func LogError(format string, args ...interface{}) { GetLogger().Error(format, args...) }
func LogWarn(format string, args ...interface{})  { GetLogger().Warn(format, args...) }
func LogInfo(format string, args ...interface{})  { GetLogger().Info(format, args...) }
func LogDebug(format string, args ...interface{}) { GetLogger().Debug(format, args...) }

// LogAppError logs an AppError with severity-appropriate level and detail.
func LogAppError(err *AppError) {
	logger := GetLogger()
	switch err.Severity {
	case SeverityCritical, SeverityError:
		logger.Error("%s", err.DetailedError())
	case SeverityWarning:
		logger.Warn("%s", err.DetailedError())
	default:
		logger.Info("%s", err.DetailedError())
	}
}

// LogValidationError logs a ValidationError.
func LogValidationError(err *ValidationError) {
	GetLogger().Error("validation error: %s", err.DetailedError())
}

func SetLogLevel(level LogLevel) { GetLogger().SetLevel(level) }
func SetDebugMode(debug bool)    { GetLogger().SetDebug(debug) }
func SetQuietMode(quiet bool)    { GetLogger().SetQuiet(quiet) }
