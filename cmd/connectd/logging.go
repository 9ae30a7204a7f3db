package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// parseLogLevel maps the --log-level flag's string value onto a logrus
// level, mirroring the teacher's configureLogger.
func parseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}
