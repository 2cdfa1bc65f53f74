//go:build windows

package config

import (
	"os"

	"golang.org/x/sys/windows"
)

// withConfigLock serializes read-modify-write cycles on config.json.
func withConfigLock(lockPath string, fn func() error) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	h := windows.Handle(f.Fd())
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, new(windows.Overlapped)); err != nil {
		return err
	}
	defer windows.UnlockFileEx(h, 0, 1, 0, new(windows.Overlapped))

	return fn()
}
