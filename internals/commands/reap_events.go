package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"donasiku_backend/internals/features/donations/gateway_events/repository"
	"donasiku_backend/internals/features/donations/gateway_events/scheduler"
)

func reapEventsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "reap-events",
		Short: "Delete gateway event log rows past the retention window, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer e.close()

			if days <= 0 {
				days = e.cfg.EventRetentionDays
			}
			r := scheduler.NewReaper(repository.NewGormRepository(e.db), scheduler.ReaperConfig{RetentionDays: days}, e.logger)
			n, err := r.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d gateway events older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default EVENT_RETENTION_DAYS)")
	return cmd
}
