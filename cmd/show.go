package cmd

import (
	"fmt"

	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <list>",
	Short:   "Show a list and its items",
	Long:    `Shows a list by id or name, with items grouped by status.`,
	GroupID: "lists",
	Args:    cobra.ExactArgs(1),
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

		l, err := database.FindList(cmd.Context(), userID, args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(l)
		}

		notes := ""
		if l.Description != "" {
			notes = output.RenderNotes(l.Description)
		}
		fmt.Print(output.FormatListLong(l, notes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
