package main

import (
	"github.com/spf13/cobra"

	"github.com/rsclarke/git-credential-keepassxc/internal/app"
	"github.com/rsclarke/git-credential-keepassxc/internal/credential"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Look up a credential (called by git)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.Get(cmd.Context())
		})
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Save a credential (called by git)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.Store(cmd.Context())
		})
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Ignore an erase request (called by git)",
	Long: `KeePassXC cannot delete entries over its browser protocol, so erase
reads the request and does nothing. It never opens the configuration.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		credential.Erase(cmd.InOrStdin(), logger)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(eraseCmd)
}
