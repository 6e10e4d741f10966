package internal

import (
	"log/slog"
	"strconv"
	"sync/atomic"
)

var (
	quietMode   atomic.Bool // Only warnings and errors are logged.
	debugMode   atomic.Bool // Debug records are logged.
	verboseMode atomic.Bool // Command output is echoed to the log.
)

// Seeds the mode flags from linker variables. Unparseable values leave the
// flag off.
func init() {
	if v, err := strconv.ParseBool(rawQuiet); err == nil {
		quietMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil {
		debugMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil {
		verboseMode.Store(v)
	}
	SyncLogLevel()
}

// Turns quiet mode on or off.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Reports whether quiet mode is on.
func IsQuiet() bool {
	return quietMode.Load()
}

// Turns debug logging on or off.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Reports whether debug logging is on.
func IsDebug() bool {
	return debugMode.Load()
}

// Turns verbose command output on or off.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Reports whether verbose command output is on.
func IsVerbose() bool {
	return verboseMode.Load()
}

// Level shared by the process-wide logger. The entry point builds its handler
// on it and the CLI adjusts it after flag parsing.
var logLevel = new(slog.LevelVar)

// Returns the shared log level variable.
func LogLevel() *slog.LevelVar {
	return logLevel
}

// Recomputes the shared log level from the current mode flags. Debug wins
// over quiet.
func SyncLogLevel() {
	switch {
	case IsDebug():
		logLevel.Set(slog.LevelDebug)
	case IsQuiet():
		logLevel.Set(slog.LevelWarn)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
