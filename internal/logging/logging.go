// Package logging configures the structured logger shared across the
// binary: one logrus instance, text formatter for terminals, JSON when
// the output writer is not a terminal, component-scoped entries handed out to each
// subsystem.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// New builds the process-wide logrus.Logger. level parses via
// logrus.ParseLevel ("debug", "info", "warn", "error"); an unrecognized
// level falls back to info.
func New(level string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// Component returns a logger scoped to one subsystem, e.g.
// Component(log, "peercore") tags every line with component=peercore.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
