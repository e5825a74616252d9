package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	LOG_LEVEL_TRACE = "TRACE"
	LOG_LEVEL_DEBUG = "DEBUG"
	LOG_LEVEL_WARN  = "WARN"
	LOG_LEVEL_INFO  = "INFO"
	LOG_LEVEL_ERROR = "ERROR"
)

var LOG_LEVELS = []string{
	LOG_LEVEL_TRACE,
	LOG_LEVEL_DEBUG,
	LOG_LEVEL_WARN,
	LOG_LEVEL_INFO,
	LOG_LEVEL_ERROR,
}

var baseLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Logger returns a structured logger filtered by the configured level.
// Child loggers carry per-run context, e.g. Logger(config).With().Str("connectionId", id).Logger()
func Logger(config *CommonConfig) zerolog.Logger {
	return baseLogger.Level(zerologLevel(config.LogLevel))
}

func LogError(config *CommonConfig, message ...interface{}) {
	logger := Logger(config)
	logger.Error().Msg(joinLogMessage(message))
}

func LogWarn(config *CommonConfig, message ...interface{}) {
	if config.LogLevel != LOG_LEVEL_ERROR {
		logger := Logger(config)
		logger.Warn().Msg(joinLogMessage(message))
	}
}

func LogInfo(config *CommonConfig, message ...interface{}) {
	if config.LogLevel != LOG_LEVEL_ERROR && config.LogLevel != LOG_LEVEL_WARN {
		logger := Logger(config)
		logger.Info().Msg(joinLogMessage(message))
	}
}

func LogDebug(config *CommonConfig, message ...interface{}) {
	if config.LogLevel == LOG_LEVEL_DEBUG || config.LogLevel == LOG_LEVEL_TRACE {
		logger := Logger(config)
		logger.Debug().Msg(joinLogMessage(message))
	}
}

func LogTrace(config *CommonConfig, message ...interface{}) {
	if config.LogLevel == LOG_LEVEL_TRACE {
		logger := Logger(config)
		logger.Trace().Msg(joinLogMessage(message))
	}
}

func zerologLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case LOG_LEVEL_TRACE:
		return zerolog.TraceLevel
	case LOG_LEVEL_DEBUG:
		return zerolog.DebugLevel
	case LOG_LEVEL_WARN:
		return zerolog.WarnLevel
	case LOG_LEVEL_ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Same spacing as log.Println
func joinLogMessage(message []interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(message...), "\n")
}
