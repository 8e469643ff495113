package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/parley/internal/config"
	"github.com/harun/parley/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent workflow runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in config")
	}

	store, err := history.Open(cfg.History.Path, zerolog.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, run.Duration.Round(10*time.Millisecond))
		fmt.Printf("  task: %s\n", run.Task)
		for _, outcome := range run.Outcomes {
			status := "ok"
			if !outcome.Success {
				status = "failed"
			}
			fmt.Printf("  - %s: %s\n", outcome.Handler, status)
		}
	}

	return nil
}
