package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/condpredict/internal/cli/config"
	"github.com/leapstack-labs/condpredict/internal/cli/output"
	"github.com/leapstack-labs/condpredict/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded prediction runs",
		Long: `List prediction runs recorded in the state database, newest first.
Each entry shows the run status, start time, duration and output network.`,
		Example: `  # Show the last 20 runs
  condpredict history

  # Show the last 5 runs as JSON
  condpredict history --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")

	return cmd
}

// runSummary is the JSON form of a recorded run.
type runSummary struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	OutPath     string            `json:"out_path,omitempty"`
	Metadata    string            `json:"metadata_path,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

func runHistory(cmd *cobra.Command, limit int) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	r := output.FromContext(ctx)

	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}

	if _, err := os.Stat(cfg.StatePath); os.IsNotExist(err) {
		r.Muted("No runs recorded.")
		return nil
	}

	store := state.NewSQLiteStore(config.GetLogger(ctx))
	if err := store.Open(cfg.StatePath); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate state store: %w", err)
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		summaries := make([]runSummary, 0, len(runs))
		for _, run := range runs {
			params := make(map[string]string, len(run.Parameters))
			for _, p := range run.Parameters {
				params[p.Name] = p.Value
			}
			summaries = append(summaries, runSummary{
				ID:          run.ID,
				Status:      string(run.Status),
				StartedAt:   run.StartedAt,
				CompletedAt: run.CompletedAt,
				Error:       run.Error,
				OutPath:     run.OutPath,
				Metadata:    run.MetadataPath,
				Parameters:  params,
			})
		}
		return r.JSON(summaries)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(run.Status),
			formatDuration(run),
			run.OutPath,
		})
	}

	r.Header(1, "Prediction Runs")
	r.Table([]string{"Run", "Started", "Status", "Duration", "Output"}, rows)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}
