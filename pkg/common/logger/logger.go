// Package logger configures the process-wide structured logger. Every
// service logs JSON to stdout with a service field so aggregated logs stay
// attributable to their emitter.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Entry

func Init() {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	base.SetLevel(logLevel)

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "platform"
	}
	Log = base.WithField("service", service)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}
