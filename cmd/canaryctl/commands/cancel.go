package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/canaryctl/internal/config"
)

// NewCancelCommand creates the cancel command
func NewCancelCommand(cfg *config.Config) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "cancel <rollout-id>",
		Short: "Cancel an active rollout",
		Long: `Request cancellation of an active rollout. The controller reverts the
canary's traffic to the baseline and finishes the rollout as RolledBack.

Cancellation is honored at the controller's next decision point. Rollouts
that already reached a terminal phase, or that began promoting, are past
the point of safe reversal and the request is rejected.`,
		Example: `  canaryctl cancel ro-9f2c4a1d`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(server)
			if err := client.cancel(args[0]); err != nil {
				return err
			}
			cfg.Logger.Info("Cancellation accepted for rollout %s", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Controller API address")

	return cmd
}
