package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/rollout"
)

// NewStatusCommand creates the status command
func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var (
		server string
		format string
	)

	cmd := &cobra.Command{
		Use:   "status [rollout-id]",
		Short: "Show rollout status",
		Long: `Display the state of one rollout, or of every rollout the controller
knows about when no ID is given.`,
		Example: `  # Show all rollouts
  canaryctl status

  # Show one rollout
  canaryctl status ro-9f2c4a1d

  # Machine-readable output
  canaryctl status ro-9f2c4a1d --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(server)

			var snapshots []rollout.Snapshot
			if len(args) > 0 {
				snap, err := client.status(args[0])
				if err != nil {
					return err
				}
				snapshots = []rollout.Snapshot{snap}
			} else {
				all, err := client.list()
				if err != nil {
					return err
				}
				snapshots = all
			}

			switch format {
			case "json":
				return outputStatusJSON(snapshots)
			default:
				return outputStatusTable(snapshots)
			}
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Controller API address")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json")

	return cmd
}

func outputStatusJSON(snapshots []rollout.Snapshot) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if len(snapshots) == 1 {
		return encoder.Encode(snapshots[0])
	}
	return encoder.Encode(snapshots)
}

func outputStatusTable(snapshots []rollout.Snapshot) error {
	if len(snapshots) == 0 {
		fmt.Println("No rollouts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tPHASE\tWEIGHT\tSTEP\tFAILED EVALS\tSTARTED")
	for _, snap := range snapshots {
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%d%%\t%d\t%d\t%s\n",
			phaseGlyph(snap.Phase),
			snap.ID,
			snap.Service,
			snap.Phase,
			snap.Weight,
			snap.StepIndex+1,
			snap.TotalFailedEvaluations,
			snap.StartedAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}

// watchRollout polls until the rollout reaches a terminal phase.
func watchRollout(cfg *config.Config, client *apiClient, id string) error {
	var lastPhase rollout.Phase
	for {
		snap, err := client.status(id)
		if err != nil {
			return err
		}
		if snap.Phase != lastPhase {
			cfg.Logger.Info("Rollout %s: %s (weight %d%%)", id, snap.Phase, snap.Weight)
			lastPhase = snap.Phase
		}
		if snap.Phase.IsTerminal() {
			if snap.Phase != rollout.PhaseSucceeded {
				return fmt.Errorf("rollout %s finished %s", id, snap.Phase)
			}
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}
