package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rsclarke/git-credential-keepassxc/internal/app"
	"github.com/rsclarke/git-credential-keepassxc/internal/db"
)

var callerAddFlags struct {
	uid     uint32
	gid     uint32
	encrypt string
}

var callerCmd = &cobra.Command{
	Use:   "caller",
	Short: "Manage the executables allowed to request credentials",
}

var callerAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Allow an executable to request credentials",
	Long: `Allow an executable to request credentials. Once any caller is
configured, requests from other parent processes are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: runCallerAdd,
}

var callerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every allowed caller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return a.CallerClear(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(callerCmd)
	callerCmd.AddCommand(callerAddCmd)
	callerCmd.AddCommand(callerClearCmd)

	callerAddCmd.Flags().Uint32Var(&callerAddFlags.uid, "uid", 0, "required real user id of the caller")
	callerAddCmd.Flags().Uint32Var(&callerAddFlags.gid, "gid", 0, "required real group id of the caller")
	callerAddCmd.Flags().StringVar(&callerAddFlags.encrypt, "encrypt", "", `encrypt the caller with a profile ("passphrase" or "keyfile:PATH")`)
}

func runCallerAdd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve caller path: %w", err)
	}
	c := db.Caller{Path: path}
	if cmd.Flags().Changed("uid") {
		uid := callerAddFlags.uid
		c.UID = &uid
	}
	if cmd.Flags().Changed("gid") {
		gid := callerAddFlags.gid
		c.GID = &gid
	}
	return withApp(func(a *app.App) error {
		return a.CallerAdd(cmd.Context(), c, callerAddFlags.encrypt)
	})
}
