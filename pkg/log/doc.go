// Package log provides the structured logging facade used across replay.
//
// The package exposes a small Logger interface with leveled methods and a
// typed Field for structured context. Output goes through a pluggable
// Formatter (text or JSON) and one or more Outputs.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("player"))
//	l.Info("playback started", log.F64("rate", 2.0))
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// format strings, as read from env or a config file).
package log
