package main

import (
	"github.com/spf13/cobra"

	"github.com/rsclarke/git-credential-keepassxc/internal/app"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [PROFILE]",
	Short: "Encrypt the stored associations and callers",
	Long: `Encrypt every plaintext association and caller. When PROFILE is given
("passphrase" or "keyfile:PATH") it is added first; any configured profile
can later unlock the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := ""
		if len(args) == 1 {
			profile = args[0]
		}
		return withApp(func(a *app.App) error {
			return a.Encrypt(cmd.Context(), profile)
		})
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt the stored associations and callers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.Decrypt(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
}
