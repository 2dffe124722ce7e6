/*
Package logging sets up the service's logrus logger.

PURPOSE:
  One JSON logger for the whole process. The ledger engine itself never
  logs; the HTTP layer logs each handler run with its timings and the
  engine's diagnostics counts.

USAGE:
  log := logging.Setup("info", "json")
  r.Get("/api/books", logging.Wrapper("ListBooks", log, h.ListBooks))
*/
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup builds the process logger. Unknown levels fall back to info;
// format "text" selects the human-readable formatter.
func Setup(level, format string) *logrus.Logger {
	return SetupWithOutput(level, format, os.Stdout)
}

// SetupWithOutput is Setup writing to out.
func SetupWithOutput(level, format string, out io.Writer) *logrus.Logger {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}

	var formatter logrus.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyLevel: "loglevel",
		},
	}
	if strings.EqualFold(format, "text") {
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	return &logrus.Logger{
		Formatter: formatter,
		Out:       out,
		Hooks:     make(logrus.LevelHooks),
		Level:     lvl,
	}
}

// LogError logs err with the module and function it came from.
func LogError(logger *logrus.Logger, moduleName, funcName, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
