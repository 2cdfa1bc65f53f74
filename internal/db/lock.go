package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName     = "db.lock"
	syncLockFileName = "sync.lock"
	defaultTimeout   = 500 * time.Millisecond
	initialBackoff   = 5 * time.Millisecond
	maxBackoff       = 50 * time.Millisecond
)

// writeLocker manages exclusive access using OS file locks.
// The lock is automatically released when the process exits (including crashes).
type writeLocker struct {
	lockPath string
	lockFile *os.File
}

func newWriteLocker(baseDir, name string) *writeLocker {
	return &writeLocker{
		lockPath: filepath.Join(baseDir, DataDir, name),
	}
}

// acquire attempts to get an exclusive lock with the given timeout.
// Returns an error with diagnostic info if the lock cannot be acquired.
func (l *writeLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.lockFile = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}

		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.lockFile.Close()
			l.lockFile = nil
			return &LockTimeoutError{Path: l.lockPath, Timeout: timeout, Holder: holder}
		}

		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// release releases the lock.
func (l *writeLocker) release() error {
	if l.lockFile == nil {
		return nil
	}

	l.lockFile.Truncate(0)
	l.unlock()
	l.lockFile.Close()
	l.lockFile = nil
	return nil
}

// writeHolder writes current process info to the lock file for debugging.
func (l *writeLocker) writeHolder() {
	if l.lockFile == nil {
		return
	}
	l.lockFile.Truncate(0)
	l.lockFile.Seek(0, 0)
	fmt.Fprintf(l.lockFile, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.lockFile.Sync()
}

// readHolder reads the current holder info from the lock file.
func (l *writeLocker) readHolder() string {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return "unknown"
	}

	var pid, timestamp string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			timestamp = v
		}
	}
	if pid == "" {
		return "unknown"
	}

	if pidInt, err := strconv.Atoi(pid); err == nil && !isProcessAlive(pidInt) {
		return fmt.Sprintf("pid:%s since %s (STALE - process dead)", pid, timestamp)
	}
	return fmt.Sprintf("pid:%s since %s", pid, timestamp)
}

// LockTimeoutError is returned when another holder keeps a lock past the timeout.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
	Holder  string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock %s timeout after %v\n  holder: %s\n  try again or check if holder process is stuck",
		filepath.Base(e.Path), e.Timeout, e.Holder)
}

// SyncLock guards a data directory against overlapping sync runs.
type SyncLock struct {
	locker *writeLocker
}

// AcquireSyncLock takes the per-directory sync lock, waiting up to timeout.
func AcquireSyncLock(baseDir string, timeout time.Duration) (*SyncLock, error) {
	l := newWriteLocker(baseDir, syncLockFileName)
	if err := l.acquire(timeout); err != nil {
		return nil, err
	}
	return &SyncLock{locker: l}, nil
}

// Release frees the sync lock. It is safe to call more than once.
func (s *SyncLock) Release() error {
	if s == nil {
		return nil
	}
	return s.locker.release()
}

// tryLock and unlock are implemented in platform-specific files:
// - lock_unix.go for Unix systems (flock)
// - lock_windows.go for Windows (LockFileEx)
