package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSync matches every SyncError.
	ErrSync = errors.New("synchronization failed")
	// ErrNoUser is returned when a run is requested without a signed-in user.
	ErrNoUser = errors.New("synchronization requires a signed-in user")
)

// SyncError wraps whatever aborted a run, recording the stage it failed in.
// Side effects applied before the failure are kept.
type SyncError struct {
	Stage State
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSync) match.
func (e *SyncError) Is(target error) bool {
	return target == ErrSync
}
