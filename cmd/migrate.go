package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateSkipRoster bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema and seed the underwriter roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// initEnv applies the schema.
		env, err := initEnv(ctx, "migrate")
		if err != nil {
			return err
		}
		defer env.Close()

		if migrateSkipRoster {
			zap.L().Info("schema migrated")
			return nil
		}

		n, err := env.Store.UpsertUnderwriters(ctx, env.Tables.Roster())
		if err != nil {
			return eris.Wrap(err, "seed underwriters")
		}
		zap.L().Info("schema migrated", zap.Int64("underwriters", n))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSkipRoster, "skip-roster", false, "apply the schema without seeding underwriters")
	rootCmd.AddCommand(migrateCmd)
}
