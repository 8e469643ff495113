package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/parley/internal/config"
	"github.com/harun/parley/internal/logger"
	"github.com/harun/parley/internal/prompts"
	"github.com/harun/parley/pkg/agent"
	"github.com/harun/parley/pkg/dispatch"
	"github.com/harun/parley/pkg/history"
	"github.com/harun/parley/pkg/mcpbridge"
)

// app wires the configured agents, bridges, and dispatcher together
// for one CLI invocation.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	dispatcher *dispatch.Dispatcher
	bridges    []*mcpbridge.Bridge
	store      *history.Store
}

// newApp loads the config and builds the full orchestration graph.
// Bridges are constructed but not yet connected.
func newApp(cfgPath, levelOverride string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if levelOverride != "" {
		cfg.Logging.Level = levelOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, err
	}
	zl := log.GetZerolog()

	provider, err := agent.NewProvider(agent.AuthProfile{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	universe := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		universe = append(universe, a.Name)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Universe: universe,
		Routing: agent.NewOracle(agent.OracleConfig{
			Provider:     provider,
			Model:        cfg.LLM.Model,
			Instructions: prompts.RoutingInstructions,
			Logger:       zl,
		}),
		Synthesis: agent.NewOracle(agent.OracleConfig{
			Provider:     provider,
			Model:        cfg.LLM.Model,
			Instructions: prompts.SynthesisInstructions,
			Logger:       zl,
		}),
		Logger: zl,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, dispatcher: dispatcher}

	for _, agentCfg := range cfg.Agents {
		bridge := mcpbridge.New(agentCfg.Name, buildTransport(agentCfg),
			mcpbridge.WithLogger(zl),
			mcpbridge.WithQueueSize(cfg.Workflow.QueueSize),
			mcpbridge.WithGracePeriod(time.Duration(cfg.Workflow.GracePeriodSeconds)*time.Second),
		)
		a.bridges = append(a.bridges, bridge)

		model := agentCfg.Model
		if model == "" {
			model = cfg.LLM.Model
		}

		runner, err := agent.NewRunner(agent.RunnerConfig{
			Name:         agentCfg.Name,
			Provider:     provider,
			Model:        model,
			Instructions: instructionsFor(agentCfg.Name),
			Bridge:       bridge,
			AllowedTools: agentCfg.AllowedTools,
			MaxRounds:    cfg.Workflow.MaxRounds,
			Temperature:  agentCfg.Temperature,
			MaxTokens:    agentCfg.MaxTokens,
			Logger:       zl,
		})
		if err != nil {
			log.Close()
			return nil, err
		}
		dispatcher.Register(runner)
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, zl)
		if err != nil {
			log.Close()
			return nil, err
		}
		a.store = store
	}

	return a, nil
}

func buildTransport(agentCfg config.AgentConfig) mcpbridge.Transport {
	if agentCfg.Server.Transport == "websocket" {
		return &mcpbridge.WSTransport{
			ClientName: "parley",
			URL:        agentCfg.Server.URL,
			Headers:    agentCfg.Server.Headers,
		}
	}
	return &mcpbridge.StdioTransport{
		ClientName: "parley",
		Command:    agentCfg.Server.Command,
		Args:       agentCfg.Server.Args,
		Env:        agentCfg.Server.Env,
	}
}

func instructionsFor(name string) string {
	if instructions := prompts.InstructionsFor(name); instructions != "" {
		return instructions
	}
	return fmt.Sprintf("You are the %s specialist agent. Use your tools to fulfil the task and report the result.", name)
}

// connect brings up every bridge. Agents whose servers fail to start
// are logged and skipped so the rest of the workflow stays usable.
func (a *app) connect(ctx context.Context) error {
	connected := 0
	for _, bridge := range a.bridges {
		if err := bridge.Connect(ctx); err != nil {
			lg := a.log.GetZerolog()
			lg.Error().
				Err(err).
				Str("bridge", bridge.Name()).
				Msg("Bridge connection failed")
			continue
		}
		connected++
	}
	if connected == 0 {
		return fmt.Errorf("no MCP servers could be reached")
	}
	return nil
}

// runOnce dispatches one task and records it in history.
func (a *app) runOnce(ctx context.Context, task string) (string, error) {
	start := time.Now()
	final, outcomes, err := a.dispatcher.RunDetailed(ctx, task)
	if err != nil {
		return "", err
	}

	if a.store != nil {
		run := history.Run{
			ID:        uuid.NewString(),
			Task:      task,
			Final:     final,
			Outcomes:  outcomes,
			StartedAt: start,
			Duration:  time.Since(start),
		}
		if err := a.store.Record(ctx, run); err != nil {
			lg := a.log.GetZerolog()
			lg.Warn().Err(err).Msg("Failed to record run history")
		}
	}

	return final, nil
}

func (a *app) zerolog() zerolog.Logger {
	return a.log.GetZerolog()
}

// close tears everything down in reverse construction order.
func (a *app) close() {
	for _, bridge := range a.bridges {
		if err := bridge.Close(); err != nil {
			lg := a.log.GetZerolog()
			lg.Warn().Err(err).Str("bridge", bridge.Name()).Msg("Bridge close failed")
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	a.log.Close()
}
