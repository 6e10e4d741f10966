package main

import (
	"log/slog"
	"os"

	"github.com/mortenlj/yakupci/internal"
	"github.com/mortenlj/yakupci/internal/cli"
)

// The entry point for the yakupci pipeline.
//
// Installs the default logger, reports build information at debug level and
// runs the command line. Any error is logged and the process exits with 1.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("yakupci is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Creates a text logger on stderr bound to the shared level variable.
//
// The level is seeded from build-time linker flags and adjusted by
// cli.Execute once flags are parsed.
func logger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: internal.LogLevel(),
	})
	return slog.New(handler).WithGroup(internal.Name)
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
