package main

import (
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "reserveit",
		Short:         "Reservation engine that books shared resources onto calendars",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, json or toml); env RESERVEIT_* always applies")

	load := func() (*app, error) {
		return loadApp(configPath)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newSweepCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newResourcesCmd(load))
	root.AddCommand(newReservationsCmd(load))
	root.AddCommand(newOrphansCmd(load))
	root.AddCommand(newGoogleAuthCmd(load))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("reserveit %s (%s)\n", Version, CommitSHA)
		},
	})
	return root
}
