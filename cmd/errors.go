package cmd

import (
	"errors"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/output"
	"github.com/marcus/lists/internal/store"
	listsync "github.com/marcus/lists/internal/sync"
	"github.com/spf13/cobra"
)

// errorCode classifies err for structured output.
func errorCode(err error) string {
	var lockErr *db.LockTimeoutError
	switch {
	case errors.Is(err, listsync.ErrNoUser):
		return output.ErrCodeNotSignedIn
	case errors.As(err, &lockErr):
		return output.ErrCodeSyncInFlight
	case errors.Is(err, store.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, store.ErrValidation):
		return output.ErrCodeInvalidInput
	case errors.Is(err, listsync.ErrSync):
		return output.ErrCodeSyncError
	default:
		return output.ErrCodeDatabaseError
	}
}

// hint suggests the next step for well-known failures.
func hint(code string) string {
	switch code {
	case output.ErrCodeNotSignedIn:
		return "run 'lists login <user>' first"
	case output.ErrCodeSyncInFlight:
		return "another sync is running in this directory"
	}
	return ""
}

// reportError prints err in the format the command was asked for.
func reportError(cmd *cobra.Command, err error) {
	code := errorCode(err)
	msg := err.Error()
	if h := hint(code); h != "" {
		msg += " (" + h + ")"
	}
	if jsonOutput(cmd) {
		output.JSONError(code, msg)
		return
	}
	output.Error("%s", msg)
}
