package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/logging"
	"github.com/marcus/lists/internal/remote/dynamo"
	"github.com/marcus/lists/internal/store"
	"github.com/marcus/lists/internal/workdir"
	"github.com/spf13/cobra"
)

var (
	baseDir string

	logCloser io.Closer = nopCloser{}
)

// now is the mutation clock.
var now = time.Now

// newRemote builds the remote store for a sync run.
var newRemote = func(ctx context.Context, cfg *config.Config) (store.RemoteStore, error) {
	return dynamo.New(ctx, dynamo.Options{
		Table:    cfg.Table(),
		Region:   cfg.Region(),
		Endpoint: cfg.Endpoint(),
		Logger:   slog.Default(),
	})
}

// SetVersion sets the version string
func SetVersion(v string) {
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "lists",
	Short: "Offline-first lists with cloud sync",
	Long: `lists - to-do, shopping, wish and check lists kept in a local database
and synchronized with a DynamoDB table when you are signed in.

Everything works offline. Changes are flagged locally and reconciled on the
next sync, last write wins.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		autoSyncAfterMutation(cmd)
		logCloser.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd, err)
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.OnInitialize(initBaseDir)
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "lists", Title: "List Commands:"},
		&cobra.Group{ID: "items", Title: "Item Commands:"},
		&cobra.Group{ID: "account", Title: "Account Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
}

func initBaseDir() {
	if baseDir != "" {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
	baseDir = workdir.ResolveBaseDir(cwd)
}

// getBaseDir returns the directory holding .lists/
func getBaseDir() string {
	return baseDir
}

// preRun configures logging and runs the startup sync when the profile asks for it.
func preRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	closer, err := logging.Setup(logging.Options{Level: level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	logCloser = closer

	syncOnStartup(cmd, cfg)
	return nil
}

// openDB opens the workspace database.
func openDB() (*db.DB, error) {
	return db.Open(getBaseDir())
}

// currentUser returns the active user id, Anonymous when signed out.
func currentUser() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.User(), nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func nowMillis() int64 {
	return now().UnixMilli()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
