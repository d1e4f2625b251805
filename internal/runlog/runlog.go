// Package runlog records run completions in an append-only text file,
// one RFC 3339 timestamp per line. The file doubles as the source of
// truth for the health endpoint: the service is healthy when a run
// completed inside the configured window.
package runlog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Log appends and reads run-completion timestamps.
type Log struct {
	path string
}

// New builds a log backed by the given file path. The file is created
// on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Append records a completed run at the given time.
func (l *Log) Append(at time.Time) error {
	const op = "Append"

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, at.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Last returns the most recent completion recorded, or the zero time
// when the log is empty or missing. Unparseable lines are skipped.
func (l *Log) Last() (time.Time, error) {
	const op = "Last"

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	var last time.Time
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, line)
		if err != nil {
			continue
		}
		if at.After(last) {
			last = at
		}
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return last, nil
}

// CompletedWithin reports whether a run completed within the window
// ending at now.
func (l *Log) CompletedWithin(window time.Duration, now time.Time) (bool, time.Time, error) {
	last, err := l.Last()
	if err != nil {
		return false, time.Time{}, err
	}
	if last.IsZero() {
		return false, time.Time{}, nil
	}
	return now.Sub(last) <= window, last, nil
}
