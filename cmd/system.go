package cmd

import (
	"fmt"
	"log/slog"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version and check for updates",
	GroupID: "system",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		v := rootCmd.Version
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Print(v)
			return
		}
		fmt.Printf("lists version %s\n", v)

		if check, _ := cmd.Flags().GetBool("check"); !check || version.IsDevelopmentVersion(v) {
			return
		}

		dir, err := config.Dir()
		if err != nil {
			return
		}
		cache := version.NewCache(dir)
		if cached, err := cache.Load(); err == nil && cache.Valid(cached, v) {
			printUpdate(v, cached.LatestVersion, cached.HasUpdate)
			return
		}

		res, err := version.NewChecker().Check(cmd.Context(), v)
		if err != nil {
			slog.Debug("version: check", "err", err)
			return
		}
		_ = cache.Save(&version.CacheEntry{
			LatestVersion:  res.LatestVersion,
			CurrentVersion: v,
			CheckedAt:      now(),
			HasUpdate:      res.HasUpdate,
		})
		printUpdate(v, res.LatestVersion, res.HasUpdate)
	},
}

func printUpdate(current, latest string, has bool) {
	if !has {
		return
	}
	fmt.Printf("\nUpdate available: %s → %s\n", current, latest)
	if line := version.UpdateCommand(latest); line != "" {
		fmt.Printf("Run: %s\n", line)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("short", false, "Print only the version")
	versionCmd.Flags().Bool("check", true, "Check GitHub for a newer release")
}
