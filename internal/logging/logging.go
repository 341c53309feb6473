// Package logging builds the loggers the sync service components use.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aatrooox/zotepad/internal/config"
)

// New returns a prefixed logger writing to stderr, or to a rotating
// file when the config names one. The prefix convention is
// "[component] ".
func New(prefix string, cfg *config.Config) *log.Logger {
	var out io.Writer = os.Stderr

	if cfg != nil && cfg.LogFile != "" {
		maxSize := cfg.LogMaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}

	return log.New(out, "["+prefix+"] ", log.LstdFlags)
}

// Discard returns a logger that drops everything. Used where a caller
// wants no output but collaborators require a logger.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
