package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/parley/internal/config"
	"github.com/harun/parley/internal/metrics"
	"github.com/harun/parley/pkg/schedule"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task through the parallel workflow",
	Long: `Run a task through the parallel multi-agent workflow.
With a task argument, runs once and prints the synthesized answer.
Without arguments, starts an interactive session; scheduled tasks fire
while the session is open.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfgFile, logLevel)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(a.cfg.Metrics.Listen); err != nil {
				lg := a.zerolog()
				lg.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	if len(args) == 1 {
		final, err := a.runOnce(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(final)
		return nil
	}

	return runInteractive(ctx, a)
}

func runInteractive(ctx context.Context, a *app) error {
	if len(a.cfg.Schedules) > 0 {
		sched, err := startScheduler(a)
		if err != nil {
			return err
		}
		defer sched.Stop()
	}

	// Hot-reload the log level while the session is open
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), a.zerolog(), func(cfg *config.Config) {
		if level, perr := zerolog.ParseLevel(cfg.Logging.Level); perr == nil {
			zerolog.SetGlobalLevel(level)
		}
	})
	if err != nil {
		lg := a.zerolog()
		lg.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	fmt.Println("Parley interactive session. Type a task, or 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}
		if task == "quit" || task == "exit" {
			return nil
		}

		final, err := a.runOnce(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(final)
	}
}

func startScheduler(a *app) (*schedule.Scheduler, error) {
	sched, err := schedule.New(schedule.Config{
		Runner: schedule.RunnerFunc(func(ctx context.Context, task string) (string, error) {
			return a.runOnce(ctx, task)
		}),
		Logger:  a.zerolog(),
		Timeout: time.Duration(a.cfg.Workflow.HandlerTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	for _, s := range a.cfg.Schedules {
		if err := sched.Add(schedule.Entry{Name: s.Name, Cron: s.Cron, Task: s.Task}); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
