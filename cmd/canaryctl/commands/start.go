package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/canaryctl/internal/config"
)

// NewStartCommand creates the start command
func NewStartCommand(cfg *config.Config) *cobra.Command {
	var (
		server string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "start <rollout-file>",
		Short: "Start a canary rollout from a rollout spec file",
		Long: `Submit a rollout spec to a running controller. The spec file defines the
target service, the weight schedule, and the metric checks guarding each
step.

The request is rejected when the spec is invalid or another rollout for
the same service is still active.`,
		Example: `  # Start a rollout
  canaryctl start payments-rollout.yaml

  # Start and follow until it reaches a terminal phase
  canaryctl start payments-rollout.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadRolloutDocument(args[0])
			if err != nil {
				return err
			}

			// Surface semantic spec errors locally before calling out.
			spec, err := doc.ToSpec()
			if err != nil {
				return err
			}
			if err := spec.Validate(); err != nil {
				return err
			}

			client := newAPIClient(server)
			id, err := client.startRollout(doc)
			if err != nil {
				return err
			}

			cfg.Logger.Info("Rollout %s started for %s", id, doc.Service)
			fmt.Println(id)

			if watch {
				return watchRollout(cfg, client, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Controller API address")
	cmd.Flags().BoolVar(&watch, "watch", false, "Follow the rollout until it reaches a terminal phase")

	return cmd
}
