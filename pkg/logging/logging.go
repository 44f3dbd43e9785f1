// Package logging adapts logrus to the core.Logger facade Pippin's engine
// calls into, so nothing under core ever imports a logging library directly.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pippin-db/pippin/core"
)

// FieldLogger wraps a logrus.FieldLogger as a core.Logger.
type FieldLogger struct {
	L logrus.FieldLogger
}

func (f FieldLogger) Warnf(format string, args ...any) { f.L.Warnf(format, args...) }

// New builds a logrus.Logger at the given level (an unparsable level falls
// back to info), appending to file when file is non-empty, and wraps it as a
// core.Logger.
func New(level, file string) (*logrus.Logger, core.Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		l.SetOutput(f)
	}
	return l, FieldLogger{L: l}, nil
}
