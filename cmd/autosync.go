package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

const autoSyncTimeout = 5 * time.Second

// mutatingCommands lists commands that modify local data and should trigger auto-sync.
var mutatingCommands = map[string]bool{
	"new":     true,
	"edit":    true,
	"rename":  true,
	"share":   true,
	"rm":      true,
	"add":     true,
	"done":    true,
	"undone":  true,
	"rm-item": true,
}

// startupSkip lists commands that never trigger the startup sync.
var startupSkip = map[string]bool{
	"init":       true,
	"login":      true,
	"logout":     true,
	"sync":       true,
	"help":       true,
	"completion": true,
	"version":    true,
}

// isMutatingCommand checks if the given command name triggers auto-sync.
func isMutatingCommand(name string) bool {
	return mutatingCommands[name]
}

// AutoSyncEnabled reports whether mutations are pushed right away.
// LISTS_AUTO_SYNC wins; otherwise enabled.
func AutoSyncEnabled() bool {
	if v := os.Getenv("LISTS_AUTO_SYNC"); v != "" {
		return v == "1" || v == "true"
	}
	return true
}

// syncOnStartup runs a sync before the command when the signed-in profile
// asks for it. Failures are reported as warnings and never block the command.
func syncOnStartup(cmd *cobra.Command, cfg *config.Config) {
	if startupSkip[cmd.Name()] || !cfg.SignedIn() {
		return
	}
	dir := getBaseDir()
	if dir == "" || !db.Exists(dir) {
		return
	}

	database, err := db.Open(dir)
	if err != nil {
		slog.Debug("autosync: open db", "err", err)
		return
	}
	defer database.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := database.GetProfile(ctx, cfg.User())
	if err != nil || p == nil || !p.SyncOnStartup {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()
	res, err := runSync(ctx, database, cfg, 0)
	if err != nil {
		output.Warning("startup sync failed: %v", err)
		return
	}
	slog.Debug("autosync: startup", "changed", res.Changed(), "out", res.Outbound, "in", res.Inbound)
}

// autoSyncAfterMutation runs a quick sync after a mutating command completes.
// Errors are logged, not returned.
func autoSyncAfterMutation(cmd *cobra.Command) {
	if !isMutatingCommand(cmd.Name()) || !AutoSyncEnabled() {
		return
	}
	cfg, err := config.Load()
	if err != nil || !cfg.SignedIn() {
		return
	}
	dir := getBaseDir()
	if dir == "" || !db.Exists(dir) {
		return
	}

	database, err := db.Open(dir)
	if err != nil {
		slog.Debug("autosync: open db", "err", err)
		return
	}
	defer database.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()
	res, err := runSync(ctx, database, cfg, 0)
	if err != nil {
		slog.Debug("autosync: mutation", "err", err)
		return
	}
	slog.Debug("autosync: mutation", "changed", res.Changed(), "out", res.Outbound)
}
