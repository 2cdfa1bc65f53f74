package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/marcus/lists/internal/config"
	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/output"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:     "login <user>",
	Short:   "Sign in; the next sync uploads lists made while signed out",
	GroupID: "account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(args[0])
		if userID == "" || userID == models.AnonymousUser {
			return &models.ValidationError{Kind: models.KindProfile, Msg: "invalid user id " + args[0]}
		}
		if err := config.SetUser(userID); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		if db.Exists(getBaseDir()) {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			err = updateProfile(cmd.Context(), database, userID, func(p *models.Profile) {
				if name != "" {
					p.Name = name
				}
				if email != "" {
					p.Email = email
				}
			})
			if err != nil {
				return err
			}
		}

		output.Success("Signed in as %s", userID)
		fmt.Println("Run 'lists sync' to upload your lists.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Sign out; new lists stay local until the next login",
	GroupID: "account",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetUser(""); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		output.Success("Signed out")
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Show or update the signed-in profile",
	GroupID: "account",
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

		flags := cmd.Flags()
		if flags.Changed("name") || flags.Changed("email") || flags.Changed("sync-on-startup") {
			name, _ := flags.GetString("name")
			email, _ := flags.GetString("email")
			onStart, _ := flags.GetBool("sync-on-startup")
			err := updateProfile(cmd.Context(), database, userID, func(p *models.Profile) {
				if flags.Changed("name") {
					p.Name = name
				}
				if flags.Changed("email") {
					p.Email = email
				}
				if flags.Changed("sync-on-startup") {
					p.SyncOnStartup = onStart
				}
			})
			if err != nil {
				return err
			}
		}

		p, err := database.GetProfile(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if p == nil {
			p = &models.Profile{UserID: userID}
		}
		if jsonOutput(cmd) {
			return output.JSON(p)
		}

		fmt.Printf("User:            %s\n", p.UserID)
		if p.Name != "" {
			fmt.Printf("Name:            %s\n", p.Name)
		}
		if p.Email != "" {
			fmt.Printf("Email:           %s\n", p.Email)
		}
		fmt.Printf("Sync on startup: %t\n", p.SyncOnStartup)
		fmt.Printf("Last sync:       %s\n", output.FormatLastSync(p.LastSyncTime))
		return nil
	},
}

// updateProfile applies fn to userID's profile, creating it on first use.
func updateProfile(ctx context.Context, database *db.DB, userID string, fn func(*models.Profile)) error {
	p, err := database.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		p = &models.Profile{UserID: userID}
	}
	fn(p)
	return database.SaveProfile(ctx, userID, p)
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, profileCmd)

	loginCmd.Flags().String("name", "", "Display name")
	loginCmd.Flags().String("email", "", "Email address")

	profileCmd.Flags().String("name", "", "Set display name")
	profileCmd.Flags().String("email", "", "Set email address")
	profileCmd.Flags().Bool("sync-on-startup", false, "Sync before every command")
}
