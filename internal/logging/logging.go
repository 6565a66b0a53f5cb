// Package logging configures the process-wide logger: nested formatter
// on stderr plus a size-rotated file.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Options controls logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	LogDir  string // empty disables the file sink
	NoColor bool
}

// New builds the shared logger. Repeated calls return the first result.
func New(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        opts.NoColor,
			TimestampFormat: "2006-01-02 15:04:05",
			HideKeys:        false,
			FieldsOrder:     []string{"component", "medication", "subject"},
		})

		writers := []io.Writer{os.Stderr}
		if opts.LogDir != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(opts.LogDir, "medcab.log"),
				MaxSize:    50,
				MaxAge:     14,
				MaxBackups: 5,
				Compress:   true,
				LocalTime:  true,
			})
		}
		logger.SetOutput(io.MultiWriter(writers...))
	})
	return logger
}

// Component returns an entry tagged with the subsystem name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
