// Package logging configures the process-wide logger: an append-only text
// file with one line per message, a one-character severity prefix, and the
// emitting file:line.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// lineFormatter renders entries as "<sev> file:line message", with severity
// one of ' ' (info and below), 'W', 'E' or 'F'.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	sev := byte(' ')
	switch e.Level {
	case logrus.WarnLevel:
		sev = 'W'
	case logrus.ErrorLevel:
		sev = 'E'
	case logrus.FatalLevel, logrus.PanicLevel:
		sev = 'F'
	}

	loc := "?:0"
	if e.Caller != nil {
		loc = fmt.Sprintf("%s:%d", filepath.Base(e.Caller.File), e.Caller.Line)
	}

	return []byte(fmt.Sprintf("%c %s %s\n", sev, loc, e.Message)), nil
}

// Setup points the standard logger at the given file, creating it if needed.
func Setup(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	logrus.SetOutput(f)
	logrus.SetReportCaller(true)
	logrus.SetFormatter(lineFormatter{})
	return nil
}

// SuppressExitForTest makes fatal log messages record without terminating
// the process, so tests can exercise fatal paths.
func SuppressExitForTest() {
	logrus.StandardLogger().ExitFunc = func(int) {}
}
