package log

import (
	"bytes"
	"fmt"
	"io"
	stdlog "log"
	"strings"
)

// Config is the declarative logger configuration.
type Config struct {
	Level  string `yaml:"level" json:"level" env:"ODDBOT_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" json:"format" env:"ODDBOT_LOG_FORMAT" env-default:"text"`
}

// ApplyConfig builds a logger writing to stderr from cfg.
func ApplyConfig(cfg Config) (Logger, error) {
	return ApplyConfigTo(cfg, nil)
}

// ApplyConfigTo is ApplyConfig with an explicit writer; nil means stderr.
func ApplyConfigTo(cfg Config, w io.Writer) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var f Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		f = &TextFormatter{}
	case "json":
		f = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	out := NewConsoleOutput()
	if w != nil {
		out = NewWriterOutput(w)
	}
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(out)), nil
}

// RedirectStdLog sends the standard library logger to l at INFO and returns a
// function restoring the previous writer and flags.
func RedirectStdLog(l Logger) func() {
	prevW, prevFlags, prevPrefix := stdlog.Writer(), stdlog.Flags(), stdlog.Prefix()
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l: l})
	return func() {
		stdlog.SetOutput(prevW)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
	}
}

type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info(string(bytes.TrimRight(p, "\n")), Str("source", "stdlog"))
	return len(p), nil
}
