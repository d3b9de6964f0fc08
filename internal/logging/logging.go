package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"esadad-service/internal/config"
)

// New builds the process logger. Unknown levels fall back to info.
func New(cfg config.Logs) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Channel returns the logger scoped to a service channel.
func Channel(logger logrus.FieldLogger, name string) *logrus.Entry {
	if name == "" {
		name = "esadad"
	}
	return logger.WithField("channel", name)
}
