package cmd

import (
	"context"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <list>...",
	Aliases: []string{"delete"},
	Short:   "Delete lists and their items",
	Long: `Deletes lists. A list that was never synced is removed at once; a synced
list is kept as a tombstone until the next sync removes it everywhere.`,
	GroupID: "lists",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		for _, ref := range args {
			l, err := deleteList(cmd.Context(), database, userID, ref)
			if err != nil {
				return err
			}
			output.Success("DELETED list %d: %s", l.LocalID, l.Name)
		}
		return nil
	},
}

// deleteList tombstones the list, or purges it when it never reached the remote store.
func deleteList(ctx context.Context, database *db.DB, userID, ref string) (*models.List, error) {
	l, err := database.FindList(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	if models.MarkDeleted(l, nowMillis()) {
		return l, database.DeleteList(ctx, userID, l.LocalID)
	}
	return l, database.SaveList(ctx, userID, l)
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
