package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/canaryctl/internal/config"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rollout-file>",
		Short: "Validate a rollout spec file without submitting it",
		Long: `Check a rollout spec file against the schema and the semantic rules
(non-decreasing weights, final weight 100, at least one metric check)
without contacting a controller.`,
		Example: `  canaryctl validate payments-rollout.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadRolloutDocument(args[0])
			if err != nil {
				return err
			}

			spec, err := doc.ToSpec()
			if err != nil {
				return err
			}
			if err := spec.Validate(); err != nil {
				return err
			}

			cfg.Logger.Info("%s is valid", args[0])
			fmt.Printf("Service: %s, %d steps, %d metric checks, failure budget %d\n",
				spec.Service, len(spec.Steps), len(spec.Checks), spec.FailureBudget)
			return nil
		},
	}

	return cmd
}
