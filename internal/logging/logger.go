package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Logger is the process-wide logger.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Init sets the log level. Unknown levels fall back to info.
func Init(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		Logger.Warnf("invalid log level %q, defaulting to info", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// GormLevel maps the current log level onto gorm's logger levels.
func GormLevel() gormlogger.LogLevel {
	switch {
	case Logger.IsLevelEnabled(logrus.DebugLevel):
		return gormlogger.Info
	case Logger.IsLevelEnabled(logrus.WarnLevel):
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}
