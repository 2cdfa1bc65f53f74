package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	listsync "github.com/marcus/lists/internal/sync"
	"github.com/marcus/lists/internal/watch"
	"github.com/spf13/cobra"
)

const syncLockTimeout = 2 * time.Second

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize lists with the cloud",
	Long: `Reconciles local lists with the remote table. Lists created while signed
out are adopted by the signed-in user first.

With --watch, keeps running and syncs whenever the local database changes and
on a fixed interval.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.SignedIn() {
			return listsync.ErrNoUser
		}

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		if status, _ := cmd.Flags().GetBool("status"); status {
			return runSyncStatus(cmd, database, cfg.User())
		}

		if n, _ := cmd.Flags().GetInt("history"); n > 0 {
			return runSyncHistory(cmd, database, cfg.User(), n)
		}

		if w, _ := cmd.Flags().GetBool("watch"); w {
			return runSyncWatch(cmd, database, cfg)
		}

		res, err := runSync(cmd.Context(), database, cfg, syncLockTimeout)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(res)
		}
		printSyncResult(res)
		return nil
	},
}

// runSync performs one locked sync run for the signed-in user. Runs that
// moved data or failed are recorded in the sync history.
func runSync(ctx context.Context, database *db.DB, cfg *config.Config, lockTimeout time.Duration) (listsync.Result, error) {
	lock, err := db.AcquireSyncLock(database.BaseDir(), lockTimeout)
	if err != nil {
		return listsync.Result{}, err
	}
	defer lock.Release()

	remote, err := newRemote(ctx, cfg)
	if err != nil {
		return listsync.Result{}, &listsync.SyncError{Stage: listsync.Fetching, Err: err}
	}

	s := listsync.New(database, remote, listsync.Options{
		Concurrency: cfg.Concurrency(),
		Now:         now,
		Logger:      slog.Default(),
	})
	started := nowMillis()
	res, err := s.Synchronize(ctx, cfg.User())

	// No-op runs must leave the database untouched; sync --watch depends on it.
	if err == nil && !res.Changed() {
		return res, nil
	}
	run := &db.SyncRun{
		UserID:    cfg.User(),
		StartedAt: started,
		Migrated:  res.Migrated,
		Lists:     res.Lists,
		Items:     res.Items,
		Outbound:  res.Outbound,
		Inbound:   res.Inbound,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if herr := database.RecordSyncRun(context.WithoutCancel(ctx), run); herr != nil {
		slog.Warn("sync: record history", "err", herr)
	}
	return res, err
}

// runSyncHistory prints the user's most recent sync runs, oldest first.
func runSyncHistory(cmd *cobra.Command, database *db.DB, userID string, limit int) error {
	runs, err := database.GetSyncHistoryTail(cmd.Context(), userID, limit)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return output.JSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No sync runs yet.")
		return nil
	}
	for _, r := range runs {
		when := time.UnixMilli(r.StartedAt).Format("2006-01-02 15:04:05")
		if r.Error != "" {
			fmt.Printf("%s  %s\n", when, output.ErrorText("failed: "+r.Error))
			continue
		}
		fmt.Printf("%s  %d list(s), %d item(s)  ↑%d ↓%d", when, r.Lists, r.Items, r.Outbound, r.Inbound)
		if r.Migrated > 0 {
			fmt.Printf("  adopted %d", r.Migrated)
		}
		fmt.Println()
	}
	return nil
}

func printSyncResult(res listsync.Result) {
	if !res.Changed() {
		fmt.Println("Already up to date.")
		return
	}
	if res.Migrated > 0 {
		output.Info("Adopted %d list(s) created while signed out", res.Migrated)
	}
	output.Success("Synced %d list(s), %d item(s): %d pushed, %d pulled",
		res.Lists, res.Items, res.Outbound, res.Inbound)
}

// runSyncStatus prints the last sync time and the local changes waiting to go out.
func runSyncStatus(cmd *cobra.Command, database *db.DB, userID string) error {
	ctx := cmd.Context()
	p, err := database.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	var last int64
	if p != nil {
		last = p.LastSyncTime
	}
	lists, err := database.GetLists(ctx, userID)
	if err != nil {
		return err
	}
	anon, err := database.GetLists(ctx, models.AnonymousUser)
	if err != nil {
		return err
	}
	pending := countPending(lists) + countPending(anon)

	if jsonOutput(cmd) {
		return output.JSON(map[string]any{
			"user":           userID,
			"last_sync_time": last,
			"pending":        pending,
		})
	}
	fmt.Printf("User:      %s\n", userID)
	fmt.Printf("Last sync: %s\n", output.FormatLastSync(last))
	fmt.Printf("Pending:   %d change(s)\n", pending)
	return nil
}

// countPending counts flagged lists and items.
func countPending(lists []*models.List) int {
	n := 0
	for _, l := range lists {
		if l.ChangeFlag != models.FlagNone {
			n++
		}
		for _, item := range l.Items {
			if item.ChangeFlag != models.FlagNone {
				n++
			}
		}
	}
	return n
}

// runSyncWatch syncs on database changes and on the configured interval until interrupted.
func runSyncWatch(cmd *cobra.Command, database *db.DB, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	output.Info("Watching %s (Ctrl-C to stop)", filepath.Join(database.BaseDir(), db.DataDir))
	return watch.Run(ctx, watch.Options{
		Dir:       filepath.Join(database.BaseDir(), db.DataDir),
		Match:     watch.Files("lists.db", "lists.db-wal"),
		Debounce:  cfg.WatchDebounce(),
		Interval:  cfg.WatchInterval(),
		Immediate: true,
		Logger:    slog.Default(),
	}, func(ctx context.Context) error {
		res, err := runSync(ctx, database, cfg, syncLockTimeout)
		if err != nil {
			output.Warning("sync failed: %v", err)
			return err
		}
		if res.Changed() {
			printSyncResult(res)
		}
		return nil
	})
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolP("watch", "w", false, "Keep syncing on changes and on an interval")
	syncCmd.Flags().Bool("status", false, "Show last sync time and pending changes")
	syncCmd.Flags().Int("history", 0, "Show the last N sync runs")
}
