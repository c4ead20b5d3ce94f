// Package clinitlog builds the logrus logger used throughout the program,
// configured from the same level/format fields clinitconfig loads.
package clinitlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger writing to stderr at the given level, in
// either "text" or "json" format.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}
