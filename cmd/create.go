package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

var errNameRequired = errors.New("name is required")

var newCmd = &cobra.Command{
	Use:     "new [name]",
	Aliases: []string{"create"},
	Short:   "Create a list",
	Long: `Creates a list. Without a name on a terminal, a form asks for the details.

Types: todo (personal, work), shop (groceries, house), wish, check (personal, work).`,
	GroupID: "lists",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		l := &models.List{}
		typ, _ := flags.GetString("type")
		l.Type = models.ListType(typ)
		l.Subtype, _ = flags.GetString("subtype")
		l.Description, _ = flags.GetString("desc")
		l.Priority, _ = flags.GetFloat64("priority")

		if len(args) == 1 {
			l.Name = args[0]
		} else {
			if !output.IsTerminal() {
				return &models.ValidationError{Kind: models.KindList, Msg: errNameRequired.Error()}
			}
			if err := promptList(l); err != nil {
				return err
			}
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

		if err := createList(cmd.Context(), database, userID, l); err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(l)
		}
		output.Success("CREATED list %d: %s", l.LocalID, l.Name)
		return nil
	},
}

// validateSubtype checks that subtype belongs to the list's type.
func validateSubtype(l *models.List) error {
	if l.Subtype == "" {
		return nil
	}
	if !slices.Contains(models.Subtypes(l.Type), l.Subtype) {
		return &models.ValidationError{
			Kind: models.KindList,
			Msg:  fmt.Sprintf("subtype %q not allowed for type %q", l.Subtype, l.Type),
		}
	}
	return nil
}

// createList stamps a new list and stores it in userID's partition.
func createList(ctx context.Context, database *db.DB, userID string, l *models.List) error {
	l.Name = strings.TrimSpace(l.Name)
	if err := validateSubtype(l); err != nil {
		return err
	}
	models.MarkNew(l, nowMillis())
	return database.SaveList(ctx, userID, l)
}

// promptList fills l from an interactive form.
func promptList(l *models.List) error {
	typeOptions := []huh.Option[string]{huh.NewOption("None", "")}
	for _, t := range models.ListTypes() {
		typeOptions = append(typeOptions, huh.NewOption(string(t), string(t)))
	}
	typ := string(l.Type)

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Name").
			Value(&l.Name).
			Placeholder("List name...").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errNameRequired
				}
				return nil
			}),
		huh.NewSelect[string]().
			Title("Type").
			Options(typeOptions...).
			Value(&typ),
		huh.NewText().
			Title("Description").
			Value(&l.Description).
			Placeholder("Optional, markdown allowed...").
			Lines(3),
	).Title("New List"))
	if err := form.Run(); err != nil {
		return err
	}
	l.Type = models.ListType(typ)

	subtypes := models.Subtypes(l.Type)
	if len(subtypes) == 0 || l.Subtype != "" {
		return nil
	}
	subOptions := []huh.Option[string]{huh.NewOption("None", "")}
	for _, s := range subtypes {
		subOptions = append(subOptions, huh.NewOption(s, s))
	}
	return huh.NewSelect[string]().
		Title("Subtype").
		Options(subOptions...).
		Value(&l.Subtype).
		Run()
}

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().StringP("type", "t", "", "List type (todo, shop, wish, check)")
	newCmd.Flags().String("subtype", "", "List subtype")
	newCmd.Flags().StringP("desc", "d", "", "Description (markdown)")
	newCmd.Flags().Float64P("priority", "p", 0, "Sort priority, lower first")
}
