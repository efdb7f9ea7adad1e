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
	"github.com/systmms/canaryctl/internal/storage"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		limit   int
		format  string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "history [service-name]",
		Short: "Show archived rollouts",
		Long: `Display archived terminal rollouts from the local archive, newest first.
Without a service name, rollouts for every service are shown.`,
		Example: `  # Show all archived rollouts
  canaryctl history

  # Show the last five rollouts for one service
  canaryctl history payments --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				dataDir = storage.DefaultDataDir()
			}
			archive, err := storage.NewFileArchive(dataDir, cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to open rollout archive: %w", err)
			}

			service := ""
			if len(args) > 0 {
				service = args[0]
			}

			history, err := archive.History(service, limit)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(history)
			default:
				return outputHistoryTable(history)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of rollouts to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Archive directory (default: XDG data dir)")

	return cmd
}

func outputHistoryTable(history []rollout.Snapshot) error {
	if len(history) == 0 {
		fmt.Println("No archived rollouts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tPHASE\tFINAL WEIGHT\tFAILED EVALS\tSTARTED\tDURATION")
	for _, snap := range history {
		duration := ""
		if !snap.CompletedAt.IsZero() {
			duration = snap.CompletedAt.Sub(snap.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%d%%\t%d\t%s\t%s\n",
			phaseGlyph(snap.Phase),
			snap.ID,
			snap.Service,
			snap.Phase,
			snap.Weight,
			snap.TotalFailedEvaluations,
			snap.StartedAt.Format(time.RFC3339),
			duration,
		)
	}
	return w.Flush()
}
