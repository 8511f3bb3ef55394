package commands

import (
	"github.com/spf13/cobra"

	database "donasiku_backend/internals/databases"
	"donasiku_backend/internals/seeds"
)

func migrateCmd() *cobra.Command {
	var withSeed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer e.close()

			if err := database.Migrate(e.db.WithContext(cmd.Context())); err != nil {
				return err
			}
			e.logger.Info("migration done")
			if !withSeed {
				return nil
			}
			return seeds.RunAllSeeds(e.db, seeds.Options{GeneralCampaignTitle: e.cfg.GeneralCampaignTitle}, e.logger)
		},
	}
	cmd.Flags().BoolVar(&withSeed, "seed", false, "also seed the general campaign")
	return cmd
}
