package cmd

import (
	"context"
	"slices"
	"strings"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// listEdit carries the fields an edit may change; nil means unchanged.
type listEdit struct {
	Name        *string
	Description *string
	Type        *string
	Subtype     *string
	Priority    *float64
}

func (e listEdit) empty() bool {
	return e.Name == nil && e.Description == nil && e.Type == nil && e.Subtype == nil && e.Priority == nil
}

var editCmd = &cobra.Command{
	Use:     "edit <list>",
	Aliases: []string{"update"},
	Short:   "Change a list's fields",
	GroupID: "lists",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		e := listEdit{
			Name:        changedString(flags, "name"),
			Description: changedString(flags, "desc"),
			Type:        changedString(flags, "type"),
			Subtype:     changedString(flags, "subtype"),
		}
		if flags.Changed("priority") {
			v, _ := flags.GetFloat64("priority")
			e.Priority = &v
		}
		if e.empty() {
			return &models.ValidationError{Kind: models.KindList, Msg: "nothing to change"}
		}

		userID, err := currentUser()
		if err != nil {
			return err
		}
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		l, err := editList(cmd.Context(), database, userID, args[0], e)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(l)
		}
		output.Success("UPDATED list %d: %s", l.LocalID, l.Name)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:     "rename <list> <name>",
	Short:   "Rename a list",
	GroupID: "lists",
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

		name := args[1]
		l, err := editList(cmd.Context(), database, userID, args[0], listEdit{Name: &name})
		if err != nil {
			return err
		}
		output.Success("RENAMED list %d: %s", l.LocalID, l.Name)
		return nil
	},
}

// changedString returns the flag's value only when it was set explicitly.
func changedString(fs *pflag.FlagSet, name string) *string {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetString(name)
	return &v
}

// editList applies e to the referenced list and flags it for the next sync.
func editList(ctx context.Context, database *db.DB, userID, ref string, e listEdit) (*models.List, error) {
	l, err := database.FindList(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	if e.Name != nil {
		l.Name = strings.TrimSpace(*e.Name)
	}
	if e.Description != nil {
		l.Description = *e.Description
	}
	if e.Type != nil && models.ListType(*e.Type) != l.Type {
		l.Type = models.ListType(*e.Type)
		l.Subtype = ""
	}
	if e.Subtype != nil {
		l.Subtype = *e.Subtype
	}
	if e.Priority != nil {
		l.Priority = *e.Priority
	}
	if err := validateSubtype(l); err != nil {
		return nil, err
	}
	models.MarkChanged(l, nowMillis())
	if err := database.SaveList(ctx, userID, l); err != nil {
		return nil, err
	}
	return l, nil
}

var shareCmd = &cobra.Command{
	Use:     "share <list> <user>...",
	Short:   "Share a list with other users",
	GroupID: "lists",
	Args:    cobra.MinimumNArgs(2),
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

		remove, _ := cmd.Flags().GetBool("remove")
		l, err := shareList(cmd.Context(), database, userID, args[0], args[1:], remove)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(l)
		}
		if len(l.SharedWith) == 0 {
			output.Success("%s is not shared", l.Name)
		} else {
			output.Success("%s shared with %s", l.Name, strings.Join(l.SharedWith, ", "))
		}
		return nil
	},
}

// shareList adds users to, or removes them from, the list's share set.
func shareList(ctx context.Context, database *db.DB, userID, ref string, users []string, remove bool) (*models.List, error) {
	l, err := database.FindList(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" || u == userID {
			continue
		}
		i := slices.Index(l.SharedWith, u)
		switch {
		case remove && i >= 0:
			l.SharedWith = slices.Delete(l.SharedWith, i, i+1)
		case !remove && i < 0:
			l.SharedWith = append(l.SharedWith, u)
		}
	}
	models.MarkChanged(l, nowMillis())
	if err := database.SaveList(ctx, userID, l); err != nil {
		return nil, err
	}
	return l, nil
}

func init() {
	rootCmd.AddCommand(editCmd, renameCmd, shareCmd)

	editCmd.Flags().String("name", "", "New name")
	editCmd.Flags().StringP("desc", "d", "", "New description")
	editCmd.Flags().StringP("type", "t", "", "New type (clears the subtype)")
	editCmd.Flags().String("subtype", "", "New subtype")
	editCmd.Flags().Float64P("priority", "p", 0, "New priority")

	shareCmd.Flags().Bool("remove", false, "Stop sharing with the given users")
}
