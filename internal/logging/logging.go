// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, format and an optional rotating log file.
type Options struct {
	Level  string
	Format string
	File   string

	// MaxSizeMB is the rotation threshold for File. Zero uses 10.
	MaxSizeMB int
}

// Setup configures logger from opts. The returned io.Closer flushes the log
// file, if any, and must be closed on shutdown.
func Setup(logger *logrus.Logger, opts Options) (io.Closer, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(level)

	switch opts.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == "" {
		logger.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	size := opts.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    size,
		MaxBackups: 3,
		MaxAge:     28,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, lj))
	return lj, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
