package cmd

import (
	"context"
	"fmt"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "Show your lists",
	GroupID: "lists",
	Args:    cobra.NoArgs,
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

		typ, _ := cmd.Flags().GetString("type")
		lists, err := visibleLists(cmd.Context(), database, userID, models.ListType(typ))
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(lists)
		}
		if len(lists) == 0 {
			fmt.Println("No lists. Create one with 'lists new <name>'.")
			return nil
		}
		for _, l := range lists {
			fmt.Println(output.FitTerminal(output.FormatListShort(l)))
		}
		return nil
	},
}

// visibleLists returns userID's live lists sorted by priority, optionally of one type.
func visibleLists(ctx context.Context, database *db.DB, userID string, typ models.ListType) ([]*models.List, error) {
	all, err := database.GetLists(ctx, userID)
	if err != nil {
		return nil, err
	}
	lists := models.VisibleLists(all)
	if typ == "" {
		return lists, nil
	}
	out := lists[:0]
	for _, l := range lists {
		if l.Type == typ {
			out = append(out, l)
		}
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringP("type", "t", "", "Only lists of this type")
}
