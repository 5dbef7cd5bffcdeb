package logger

import (
	"os"
	"sync"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the process-wide logger. Before SetLogger is called it
// lazily builds a console logger so code that runs ahead of config loading
// (env parsing, storage bootstrap) can still log. DEBUG=true or LOG_LEVEL
// override the bootstrap level.
func GetLogger() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			level := "info"
			if os.Getenv("DEBUG") == "true" {
				level = "debug"
			} else if os.Getenv("LOG_LEVEL") != "" {
				level = os.Getenv("LOG_LEVEL")
			}

			globalLogger = New(Config{
				Level:  level,
				Format: "console",
				Output: "stdout",
			})
		}
	})
	return globalLogger
}

// SetLogger replaces the global logger, normally once config is loaded.
func SetLogger(logger *Logger) {
	globalLogger = logger
}

func Debug(msg string) {
	GetLogger().Debug(msg)
}

func Info(msg string) {
	GetLogger().Info(msg)
}

func Warn(msg string) {
	GetLogger().Warn(msg)
}

func Error(msg string) {
	GetLogger().Error(msg)
}

// WithField adds a field on the global logger.
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithError adds an error on the global logger.
func WithError(err error) *Logger {
	return GetLogger().WithError(err)
}
