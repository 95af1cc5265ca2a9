// Package logging configures structured logging shared by the Model
// Service and the Verifier.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a *logrus.Entry on a new logrus.Logger configured with the
// given component name and level. component is attached to every entry as a "component" field
// so a single journalctl/syslog stream can be filtered by subsystem.
func New(component string, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger.WithField("component", component)
}

// NewWithWriter is like New but sends output to w instead of stderr.
// Used in tests to capture log output.
func NewWithWriter(component string, level logrus.Level, w io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	})
	return logger.WithField("component", component)
}

// ParseLevel parses a level string, falling back to InfoLevel on error.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
