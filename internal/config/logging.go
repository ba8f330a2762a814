package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a component logger honoring the log settings: rotated
// file output when LogFile is set, stderr otherwise. Prefix should carry
// the component tag, e.g. "[session] ".
func NewLogger(cfg Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}
