// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/splicebridge/lib/clock"
)

const (
	filePrefix     = "Log_"
	fileSuffix     = ".txt"
	fileTimeLayout = "20060102_150405"
	fileDayLayout  = "20060102"

	// DefaultRetention is how long rotated files are kept.
	DefaultRetention = 7 * 24 * time.Hour

	defaultSplitHours = 24
)

// Config controls a Manager.
type Config struct {
	// Enabled turns logging to disk on. A disabled Manager accepts
	// writes and discards them.
	Enabled bool

	// Directory holds the log files. Created if missing.
	Directory string

	// SplitHours is the rotation interval. Defaults to 24.
	SplitHours int

	// Retention is the age after which files are pruned. Defaults to
	// DefaultRetention.
	Retention time.Duration

	// Clock drives rotation and retention. Required when Enabled.
	Clock clock.Clock

	// Stderr receives lines that could not be written to the file.
	// Defaults to os.Stderr.
	Stderr io.Writer
}

// fileHandle is the current log file. Replaced, never mutated, on
// rotation.
type fileHandle struct {
	path      string
	createdAt time.Time
	rotateAt  time.Time
}

// Manager is a rotating append-only log file. Safe for concurrent
// use; writes are serialized so lines never interleave.
type Manager struct {
	mu        sync.Mutex
	enabled   bool
	directory string
	split     time.Duration
	retention time.Duration
	clock     clock.Clock
	stderr    io.Writer
	current   fileHandle
	rotations int
}

// Open creates the log directory and a fresh log file, then prunes
// expired files. A disabled config returns a no-op Manager.
func Open(config Config) (*Manager, error) {
	stderr := config.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if !config.Enabled {
		return &Manager{stderr: stderr}, nil
	}
	if config.Directory == "" {
		return nil, fmt.Errorf("logfile: Directory is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("logfile: Clock is required")
	}

	splitHours := config.SplitHours
	if splitHours <= 0 {
		splitHours = defaultSplitHours
	}
	retention := config.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("logfile: creating %s: %w", config.Directory, err)
	}

	manager := &Manager{
		enabled:   true,
		directory: config.Directory,
		split:     time.Duration(splitHours) * time.Hour,
		retention: retention,
		clock:     config.Clock,
		stderr:    stderr,
	}

	now := config.Clock.Now()
	path, err := manager.createFile(now)
	if err != nil {
		return nil, err
	}
	manager.current = fileHandle{path: path, createdAt: now, rotateAt: now.Add(manager.split)}
	manager.pruneLocked(now)
	return manager, nil
}

// WriteLine appends message as one line, rotating first if the
// deadline has passed.
func (m *Manager) WriteLine(message string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if now.After(m.current.rotateAt) {
		m.rotateLocked(now)
	}
	m.appendLocked(message)
}

// Write implements io.Writer. Each call is one line; a trailing
// newline is trimmed so slog records are not double-spaced.
func (m *Manager) Write(p []byte) (int, error) {
	m.WriteLine(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Enabled reports whether the manager writes to disk.
func (m *Manager) Enabled() bool { return m.enabled }

// Path returns the current log file path, or "" when disabled.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.path
}

// RotateAt returns the current rotation deadline.
func (m *Manager) RotateAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.rotateAt
}

// Rotations returns how many times the file was switched.
func (m *Manager) Rotations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

// Prune deletes expired log files now and returns their paths.
func (m *Manager) Prune() []string {
	if !m.enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(m.clock.Now())
}

// rotateLocked switches to today's most recent file, or a new one if
// none exists, and recomputes the deadline. Must hold m.mu.
func (m *Manager) rotateLocked(now time.Time) {
	path, err := m.latestForDay(now)
	if err != nil {
		m.appendLocked(fmt.Sprintf("log rotation: listing %s: %v", m.directory, err))
	}
	if path == "" {
		path, err = m.createFile(now)
		if err != nil {
			// Keep writing to the old file and retry on the next
			// interval.
			m.current.rotateAt = now.Add(m.split)
			m.appendLocked(fmt.Sprintf("log rotation: %v", err))
			return
		}
	}
	if path != m.current.path {
		m.rotations++
	}
	m.current = fileHandle{path: path, createdAt: now, rotateAt: now.Add(m.split)}
	m.pruneLocked(now)
}

// latestForDay returns the lexically greatest (and so most recent)
// log file named for now's date, or "" when there is none.
func (m *Manager) latestForDay(now time.Time) (string, error) {
	pattern := filepath.Join(m.directory, filePrefix+now.Format(fileDayLayout)+"_*"+fileSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// createFile creates the file named for now, leaving an existing one
// intact.
func (m *Manager) createFile(now time.Time) (string, error) {
	path := filepath.Join(m.directory, filePrefix+now.Format(fileTimeLayout)+fileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("logfile: creating %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("logfile: closing %s: %w", path, err)
	}
	return path, nil
}

// appendLocked opens the current file, writes one line and closes it.
// Must hold m.mu.
func (m *Manager) appendLocked(line string) {
	file, err := os.OpenFile(m.current.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(m.stderr, "logfile: %v: %s\n", err, line)
		return
	}
	_, writeErr := file.WriteString(line + "\n")
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		fmt.Fprintf(m.stderr, "logfile: %v: %s\n", err, line)
	}
}

// pruneLocked deletes Log_* files last written before now-retention.
// Failures are written to the log. Must hold m.mu.
func (m *Manager) pruneLocked(now time.Time) []string {
	entries, err := os.ReadDir(m.directory)
	if err != nil {
		m.appendLocked(fmt.Sprintf("remove old logs: path %s: %v", m.directory, err))
		return nil
	}
	cutoff := now.Add(-m.retention)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		path := filepath.Join(m.directory, entry.Name())
		if path == m.current.path {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			m.appendLocked(fmt.Sprintf("remove old logs: stat %s: %v", path, err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.appendLocked(fmt.Sprintf("remove old logs: %v", err))
			continue
		}
		removed = append(removed, path)
	}
	return removed
}
