package cmd

import (
	"fmt"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	listsync "github.com/marcus/lists/internal/sync"
	"github.com/spf13/cobra"
)

var sharedCmd = &cobra.Command{
	Use:     "shared",
	Short:   "Show lists other users shared with you",
	Long:    `Reads lists shared with you straight from the remote table. They are not stored locally.`,
	GroupID: "lists",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.SignedIn() {
			return listsync.ErrNoUser
		}

		remote, err := newRemote(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		lists, err := remote.GetSharedLists(cmd.Context(), cfg.User())
		if err != nil {
			return err
		}
		models.SortListsByPriority(lists)

		if jsonOutput(cmd) {
			return output.JSON(lists)
		}
		if len(lists) == 0 {
			fmt.Println("Nothing shared with you.")
			return nil
		}
		for _, l := range lists {
			fmt.Println(output.FitTerminal(fmt.Sprintf("%s  (from %s)", output.FormatListShort(l), l.OwnerID)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sharedCmd)
}
