package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const lockFileName = "sync.lock"

// DefaultStaleLockAge is the threshold past which a leftover lock file is
// assumed to belong to a crashed process and is reclaimed.
const DefaultStaleLockAge = 15 * time.Minute

// ErrSyncInProgress is returned when another sync holds the advisory lock.
var ErrSyncInProgress = errors.New("another sync is already in progress")

// Lock is an advisory file lock serializing sync operations against one
// local state root. It is held for the duration of one sync and must be
// released on every exit path.
type Lock struct {
	path string
}

// AcquireLock takes the advisory lock, failing fast with ErrSyncInProgress
// if it is already held. A lock file older than staleAge is reclaimed with
// a warning rather than blocking the operator forever after a crash.
func (s *Store) AcquireLock(staleAge time.Duration) (*Lock, error) {
	if staleAge <= 0 {
		staleAge = DefaultStaleLockAge
	}
	path := filepath.Join(s.root, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("writing lock file %s: %w", path, errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file %s: %w", path, err)
		}

		info, serr := os.Stat(path)
		if serr != nil {
			if os.IsNotExist(serr) {
				continue // holder released between our attempts
			}
			return nil, fmt.Errorf("checking lock file %s: %w", path, serr)
		}
		age := time.Since(info.ModTime())
		if age < staleAge {
			return nil, fmt.Errorf("lock held for %s (%s): %w", age.Truncate(time.Second), path, ErrSyncInProgress)
		}

		s.logger.Printf("Reclaiming stale sync lock %s (age %s, holder %s)", path, age.Truncate(time.Second), lockHolder(path))
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("reclaiming stale lock %s: %w", path, rerr)
		}
	}

	return nil, ErrSyncInProgress
}

// Release removes the lock file. Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// lockHolder reads the pid recorded in a lock file, for log messages only.
func lockHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "unknown"
	}
	fields := string(data)
	for i, c := range fields {
		if c == ' ' || c == '\n' {
			fields = fields[:i]
			break
		}
	}
	if _, err := strconv.Atoi(fields); err != nil {
		return "unknown"
	}
	return "pid " + fields
}
