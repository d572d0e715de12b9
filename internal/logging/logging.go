package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging builds the JSON logger shared by every component.
// Unknown levels fall back to info.
func SetupLogging(level string) *logrus.Logger {
	logger := logrus.New()
	logger.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyLevel: "loglevel",
		},
	}
	logger.Out = os.Stdout
	logger.Level = logrus.InfoLevel

	if parsed, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		logger.Level = parsed
	}

	return logger
}
