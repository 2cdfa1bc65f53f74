package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/store"
)

const clock int64 = 1_700_000_000_000

// setupWorkspace initializes a database in a temp dir and points the command
// globals at it.
func setupWorkspace(t *testing.T) *db.DB {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	oldBase := baseDir
	baseDir = dir
	t.Cleanup(func() { baseDir = oldBase })

	t.Setenv("LISTS_CONFIG_DIR", t.TempDir())
	t.Setenv("LISTS_USER", "")
	t.Setenv("LISTS_AUTO_SYNC", "0")
	setNow(t, clock)
	return database
}

// setNow fixes the mutation clock at ms.
func setNow(t *testing.T, ms int64) {
	t.Helper()
	old := now
	now = func() time.Time { return time.UnixMilli(ms) }
	t.Cleanup(func() { now = old })
}

// useRemote makes sync commands talk to r.
func useRemote(t *testing.T, r store.RemoteStore) {
	t.Helper()
	old := newRemote
	newRemote = func(context.Context, *config.Config) (store.RemoteStore, error) { return r, nil }
	t.Cleanup(func() { newRemote = old })
}

// captureStdout returns what fn prints to stdout.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldOut := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldOut

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), runErr
}
