// Package schedule runs recurring orchestration tasks on cron
// expressions.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner executes one orchestration task and returns the final answer.
type Runner interface {
	Run(ctx context.Context, task string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, task string) (string, error) {
	return f(ctx, task)
}

// Entry is one scheduled task.
type Entry struct {
	Name string
	Cron string
	Task string
}

// Scheduler drives entries through a Runner on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  zerolog.Logger
	timeout time.Duration
}

// Config holds scheduler configuration.
type Config struct {
	Runner  Runner
	Logger  zerolog.Logger
	Timeout time.Duration // per-run timeout, 0 means no limit
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Scheduler{
		cron:    cron.New(),
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}, nil
}

// Add registers one entry. Standard 5-field cron expressions.
func (s *Scheduler) Add(entry Entry) error {
	if entry.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", entry.Name)
	}
	if entry.Task == "" {
		return fmt.Errorf("schedule %s: task is required", entry.Name)
	}

	_, err := s.cron.AddFunc(entry.Cron, func() {
		s.execute(entry)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", entry.Name, err)
	}

	s.logger.Info().
		Str("schedule", entry.Name).
		Str("cron", entry.Cron).
		Msg("Schedule registered")

	return nil
}

// NextRun returns the next fire time for a cron expression.
func NextRun(expr string) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched.Next(time.Now()), nil
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for in-flight runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) execute(entry Entry) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info().
		Str("schedule", entry.Name).
		Msg("Scheduled run starting")

	final, err := s.runner.Run(ctx, entry.Task)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("schedule", entry.Name).
			Dur("elapsed", time.Since(start)).
			Msg("Scheduled run failed")
		return
	}

	s.logger.Info().
		Str("schedule", entry.Name).
		Dur("elapsed", time.Since(start)).
		Int("answer_len", len(final)).
		Msg("Scheduled run complete")
}
