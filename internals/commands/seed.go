package commands

import (
	"github.com/spf13/cobra"

	"donasiku_backend/internals/seeds"
)

func seedCmd() *cobra.Command {
	var campaignsFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the general campaign and, optionally, demo campaigns",
		Example: `  donasiku seed
  donasiku seed --campaigns internals/seeds/campaigns/data_campaigns.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer e.close()

			return seeds.RunAllSeeds(e.db.WithContext(cmd.Context()), seeds.Options{
				GeneralCampaignTitle: e.cfg.GeneralCampaignTitle,
				CampaignsFile:        campaignsFile,
			}, e.logger)
		},
	}
	cmd.Flags().StringVar(&campaignsFile, "campaigns", "", "JSON file of campaigns to insert")
	return cmd
}
