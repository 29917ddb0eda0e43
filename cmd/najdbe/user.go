package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

var (
	userName string
	userRole string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username> <password>",
	Short: "Create a local account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, password := args[0], args[1]
		if err := model.ValidatePassword(password); err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		name := userName
		if name == "" {
			name = username
		}
		u, err := store.NewAccounts(database).CreateUser(cmd.Context(), username, name, string(hash), userRole)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (id %d, role %s)\n", u.Username, u.ID, u.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		users, err := store.NewAccounts(database).Users(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tROLE")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Name, u.Role)
		}
		return w.Flush()
	},
}

func init() {
	userAddCmd.Flags().StringVarP(&userName, "name", "n", "", "display name (defaults to the username)")
	userAddCmd.Flags().StringVarP(&userRole, "role", "r", model.RoleStudent, "role: admin, staff or student")
	userCmd.AddCommand(userAddCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}
