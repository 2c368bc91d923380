package main

import (
	"github.com/spf13/cobra"
)

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbclone [command]",
		Short: "Clone, verify and repair a database between SQL Server and Postgres endpoints",
		Long: `Clone a database from SOURCE_* to TARGET_*: schema, data, foreign keys,
functions and views. Export and import move a database through a local or
S3 archive. Verify compares both sides table by table; fix repairs the tables
that differ. Settings come from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logs")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", a.envFile, "optional .env file read before the environment")

	root.AddCommand(
		a.exportCmd(),
		a.importCmd(),
		a.migrateCmd(),
		a.verifyCmd(),
		a.fixCmd(),
	)
	return root
}
