// Package marker persists the date of the last published dataset as a
// single-line text file.
package marker

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Layout is the timestamp layout written to the marker file.
const Layout = "2006-01-02T15:04:05"

// Read returns the stored date. ok is false when no marker exists yet.
func Read(path string) (t time.Time, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to open marker: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return time.Time{}, false, fmt.Errorf("failed to read marker: %w", err)
		}
		return time.Time{}, false, nil
	}
	line := strings.TrimSpace(sc.Text())
	if line == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(Layout, line)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse marker %q: %w", line, err)
	}
	return t, true, nil
}

// Write stores t, replacing the previous marker atomically. t is written in
// UTC, matching the dataset's own timestamps.
func Write(path string, t time.Time) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return fmt.Errorf("failed to create temp marker: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.WriteString(t.UTC().Format(Layout)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace marker: %w", err)
	}
	return nil
}
