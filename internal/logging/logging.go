// Package logging builds the logrus.Logger every component of this adapter
// writes through. Every LSP-facing process
// logs to stderr only, since stdout carries the Content-Length-framed
// protocol itself; colorized output is reserved for a real terminal, never
// for the piped stdio transport an editor drives.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/armon/circbuf"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// CrashTailBytes bounds how much recent log output is retained in memory
// for inclusion in a crash report.
const CrashTailBytes = 64 * 1024

// Options configures the logger New builds.
type Options struct {
	Level string
	Output io.Writer // defaults to os.Stderr
}

// New builds a logrus.Logger writing to Options.Output (stderr by default),
// colorized only when that output is an interactive terminal, and tees
// everything into a bounded ring buffer so a crash report can include
// recent log context without re-reading a log file.
func New(opts Options) (*logrus.Logger, *CrashTail) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	tail, err := circbuf.NewBuffer(CrashTailBytes)
	if err != nil {
		// NewBuffer only fails for a non-positive size; CrashTailBytes is a
		// positive constant, so this is unreachable in practice.
		tail = nil
	}
	ct := &CrashTail{buf: tail}

	writer := out
	if tail != nil {
		writer = io.MultiWriter(out, tail)
	}

	log := logrus.New()
	log.SetOutput(writer)
	log.SetLevel(levelOrDefault(opts.Level))
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors: isTerminal(out),
		DisableColors: !isTerminal(out),
		FullTimestamp: true,
	})
	return log, ct
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// levelOrDefault parses a level name, falling back to Info on an empty or
// unrecognized value rather than failing startup over a logging flag.
func levelOrDefault(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// CrashTail retains the tail of everything logged, for attaching to a fatal
// error report.
type CrashTail struct {
	buf *circbuf.Buffer
}

// String returns the retained log tail, or "" if retention is disabled.
func (c *CrashTail) String() string {
	if c == nil || c.buf == nil {
		return ""
	}
	return c.buf.String()
}

// WrapFatal appends the log tail to a fatal error's message so a crash
// report carries the context that led to it.
func (c *CrashTail) WrapFatal(err error) error {
	tail := c.String()
	if tail == "" {
		return err
	}
	return fmt.Errorf("%w\n--- recent log output ---\n%s", err, tail)
}
