package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/config"
)

// Fields represents structured logging fields
type Fields = logrus.Fields

// NewLoggerWithService returns a JSON logger whose entries all carry the service name
func NewLoggerWithService(serviceName string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger.WithField("service", serviceName)
}

// Configure applies the same settings to the package-level logrus logger used
// during bootstrap
func Configure() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(config.GetLogLevel())
}
