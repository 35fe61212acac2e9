// Package logger configures the process logger.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Setup returns a logger writing to out at the named level. JSON output
// suits log collectors; otherwise text is colored only on a terminal.
func Setup(level string, json bool, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
		return log, nil
	}

	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: !tty,
	})
	return log, nil
}
