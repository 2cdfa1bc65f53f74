package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/marcus/lists/internal/store"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add <list> <item>",
	Short:   "Add an item to a list",
	GroupID: "items",
	Args:    cobra.ExactArgs(2),
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

		item := &models.ListItem{Name: args[1], Status: models.ItemPending}
		item.Notes, _ = cmd.Flags().GetString("notes")
		item.Priority, _ = cmd.Flags().GetFloat64("priority")

		l, err := addItem(cmd.Context(), database, userID, args[0], item)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(item)
		}
		output.Success("ADDED item %d to %s: %s", item.LocalID, l.Name, item.Name)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <item>...",
	Aliases: []string{"check"},
	Short:   "Mark items done",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetStatus(cmd, args, models.ItemDone)
	},
}

var undoneCmd = &cobra.Command{
	Use:     "undone <item>...",
	Aliases: []string{"uncheck"},
	Short:   "Mark items pending again",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetStatus(cmd, args, models.ItemPending)
	},
}

var rmItemCmd = &cobra.Command{
	Use:     "rm-item <item>...",
	Short:   "Delete items",
	GroupID: "items",
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
			item, err := deleteItem(cmd.Context(), database, userID, ref)
			if err != nil {
				return err
			}
			output.Success("DELETED item %d: %s", item.LocalID, item.Name)
		}
		return nil
	},
}

func runSetStatus(cmd *cobra.Command, args []string, status models.ItemStatus) error {
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
		item, err := setItemStatus(cmd.Context(), database, userID, ref, status)
		if err != nil {
			return err
		}
		output.Success("%s %d: %s", strings.ToUpper(string(status)), item.LocalID, item.Name)
	}
	return nil
}

// addItem stamps item as new and stores it under the referenced list.
func addItem(ctx context.Context, database *db.DB, userID, listRef string, item *models.ListItem) (*models.List, error) {
	l, err := database.FindList(ctx, userID, listRef)
	if err != nil {
		return nil, err
	}
	item.Name = strings.TrimSpace(item.Name)
	item.ListLocalID = l.LocalID
	models.MarkNew(item, nowMillis())
	if err := database.SaveListItem(ctx, userID, item); err != nil {
		return nil, err
	}
	return l, nil
}

// findItem resolves an item id. Tombstoned items are reported as missing.
func findItem(ctx context.Context, database *db.DB, userID, ref string) (*models.ListItem, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, &models.ValidationError{Kind: models.KindItem, Msg: "item id must be a number: " + ref}
	}
	item, err := database.GetListItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if models.IsDeleted(item) {
		return nil, store.NotFound(models.KindItem, ref)
	}
	return item, nil
}

func setItemStatus(ctx context.Context, database *db.DB, userID, ref string, status models.ItemStatus) (*models.ListItem, error) {
	item, err := findItem(ctx, database, userID, ref)
	if err != nil {
		return nil, err
	}
	if item.Status == status {
		return item, nil
	}
	item.Status = status
	models.MarkChanged(item, nowMillis())
	if err := database.SaveListItem(ctx, userID, item); err != nil {
		return nil, err
	}
	return item, nil
}

// deleteItem tombstones the item, or purges it when it never reached the remote store.
func deleteItem(ctx context.Context, database *db.DB, userID, ref string) (*models.ListItem, error) {
	item, err := findItem(ctx, database, userID, ref)
	if err != nil {
		return nil, err
	}
	if models.MarkDeleted(item, nowMillis()) {
		return item, database.DeleteListItem(ctx, userID, item.ListLocalID, item.LocalID)
	}
	return item, database.SaveListItem(ctx, userID, item)
}

func init() {
	rootCmd.AddCommand(addCmd, doneCmd, undoneCmd, rmItemCmd)

	addCmd.Flags().StringP("notes", "n", "", "Item notes")
	addCmd.Flags().Float64P("priority", "p", 0, "Sort priority, lower first")
}
