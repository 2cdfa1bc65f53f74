package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/output"
	"github.com/marcus/lists/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a lists workspace",
	Long: `Creates the local .lists directory and SQLite database.

With --remote, also creates the DynamoDB table named in the config if it does
not exist yet.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := initWorkspace(getBaseDir())
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("INITIALIZED %s/\n", db.DataDir)
		} else {
			output.Warning("%s/ already exists", db.DataDir)
		}

		if remote, _ := cmd.Flags().GetBool("remote"); remote {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := ensureRemoteTable(cmd.Context(), cfg); err != nil {
				return err
			}
			output.Success("Remote table %s ready", cfg.Table())
		}
		return nil
	},
}

// tableCreator is implemented by remote stores that can provision their storage.
type tableCreator interface {
	EnsureTable(ctx context.Context) error
}

// ensureRemoteTable provisions the remote table when the store supports it.
func ensureRemoteTable(ctx context.Context, cfg *config.Config) error {
	remote, err := newRemote(ctx, cfg)
	if err != nil {
		return err
	}
	return provision(ctx, remote)
}

func provision(ctx context.Context, remote store.RemoteStore) error {
	tc, ok := remote.(tableCreator)
	if !ok {
		return nil
	}
	if err := tc.EnsureTable(ctx); err != nil {
		return fmt.Errorf("create remote table: %w", err)
	}
	return nil
}

// initWorkspace creates the database unless it exists. It reports whether it did.
func initWorkspace(dir string) (bool, error) {
	if db.Exists(dir) {
		return false, nil
	}
	database, err := db.Initialize(dir)
	if err != nil {
		return false, fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	addToGitignore(filepath.Join(dir, ".gitignore"))
	return true, nil
}

// addToGitignore appends the data dir to an existing .gitignore.
func addToGitignore(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	entry := db.DataDir + "/"
	if strings.Contains(string(content), entry) {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		f.WriteString("\n")
	}
	f.WriteString(entry + "\n")
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("remote", false, "Also create the remote DynamoDB table if missing")
}
