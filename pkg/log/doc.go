// Package log provides oddbot's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records flow through log/slog into a
// bridge handler that applies our formatter and outputs, so components can
// hand a *slog.Logger to libraries that want one while the rest of the code
// stays on this facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("gateway"), log.Str("session", sid))
//	l.Info("replay complete", log.Int("records", n))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level and format).
// RedirectStdLog routes the standard library logger, and anything that writes
// through it, into a Logger.
package log
