package main

import (
	"github.com/spf13/cobra"

	"github.com/rsclarke/git-credential-keepassxc/internal/app"
)

var configureFlags struct {
	group   string
	encrypt string
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Associate with the KeePassXC database that is currently open",
	Long: `Associate with the KeePassXC database that is currently open and save
the association. KeePassXC asks for confirmation and a name for the
association. New logins are stored in the given group.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.Configure(cmd.Context(), configureFlags.group, configureFlags.encrypt)
		})
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().StringVar(&configureFlags.group, "group", app.DefaultGroup, "KeePassXC group for new logins")
	configureCmd.Flags().StringVar(&configureFlags.encrypt, "encrypt", "", `encrypt the association with a profile ("passphrase" or "keyfile:PATH")`)
}
