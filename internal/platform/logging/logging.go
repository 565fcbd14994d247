package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds the process logger. The auto format is text on a terminal and
// JSON otherwise.
func New(opts Options) (*logrus.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	switch format := resolveFormat(opts.Format, out); format {
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return log, nil
}

// Discard is a logger for callers that want no output.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func resolveFormat(format string, out io.Writer) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != FormatAuto {
		return format
	}
	if IsTerminal(out) {
		return FormatText
	}
	return FormatJSON
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
