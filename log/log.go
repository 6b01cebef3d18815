// Package log is a thin global-logger wrapper around esc.ConsoleLogger,
// for callers that want package-level Info/Debug/Warn/Error helpers
// instead of threading an esc.ILogger through their own code.
package log

import (
	esc "github.com/mickamy/eventstore-core"
)

// Logger is the global logger instance used by the package-level helpers.
var Logger esc.ILogger = esc.NewConsoleLogger()

// Init replaces the global logger. Passing nil restores the default
// console logger.
func Init(l esc.ILogger) {
	if l == nil {
		l = esc.NewConsoleLogger()
	}
	Logger = l
}

func Info(msg string)  { Logger.Info(msg) }
func Debug(msg string) { Logger.Debug(msg) }
func Warn(msg string)  { Logger.Warn(msg) }
func Error(msg string) { Logger.Error(msg) }
