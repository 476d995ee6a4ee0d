package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/fadedpez/crates/internal/types"
)

// Options configures the logger.
type Options struct {
	Level string // logrus level name; defaults to info
	File  string // when set, logs are also written to this rotating file
}

// New builds the application logger. Output always goes to stdout; when a
// file is configured it is rotated by lumberjack so long-running deployments
// do not grow unbounded logs.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetReportCaller(true)

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	})

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotating))
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// LogError logs an EconomyError with its code as a structured field, or the
// raw error when it is not one.
func LogError(logger *logrus.Logger, err error) {
	var econErr *types.EconomyError
	if errors.As(err, &econErr) {
		entry := logger.WithField("code", string(econErr.Code))
		if econErr.Err != nil {
			entry = entry.WithError(econErr.Err)
		}
		entry.Error(econErr.Message)
		return
	}
	logger.WithError(err).Error("unexpected error")
}
