package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/parley/internal/metrics"
)

const (
	// NoRoutingMessage is returned when the routing oracle selects no
	// known handler. A normal terminal outcome, not an error.
	NoRoutingMessage = "Orchestrator could not determine which agents to invoke for this task."

	// NoHandlersMessage is returned when every selected handler is
	// missing from the registry.
	NoHandlersMessage = "No valid agents available for the selected tasks."

	// EmptySynthesisMessage is returned when the synthesis oracle
	// produces empty text.
	EmptySynthesisMessage = "(synthesis produced no output)"
)

// Dispatcher executes the route, fan-out, synthesize pipeline. It is
// safe for concurrent Run calls.
type Dispatcher struct {
	universe  []string
	handlers  map[string]Handler
	routing   Oracle
	synthesis Oracle
	logger    zerolog.Logger
}

// Config holds dispatcher configuration.
type Config struct {
	// Universe is the closed set of handler names the routing oracle
	// may select from.
	Universe  []string
	Routing   Oracle
	Synthesis Oracle
	Logger    zerolog.Logger
}

// New creates a dispatcher. Handlers are registered separately; a name
// in the universe without a registered handler is skipped at fan-out
// with a warning.
func New(cfg Config) (*Dispatcher, error) {
	if len(cfg.Universe) == 0 {
		return nil, fmt.Errorf("handler universe is required")
	}
	if cfg.Routing == nil {
		return nil, fmt.Errorf("routing oracle is required")
	}
	if cfg.Synthesis == nil {
		return nil, fmt.Errorf("synthesis oracle is required")
	}

	return &Dispatcher{
		universe:  append([]string(nil), cfg.Universe...),
		handlers:  make(map[string]Handler),
		routing:   cfg.Routing,
		synthesis: cfg.Synthesis,
		logger:    cfg.Logger,
	}, nil
}

// Register adds a handler to the registry. Not safe to call
// concurrently with Run; register everything during setup.
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Name()] = h
}

// Run executes the pipeline for one task and returns the synthesized
// answer. It fails only when the routing or synthesis oracle call
// itself fails, or the context is cancelled; handler failures are
// absorbed into the synthesis input.
func (d *Dispatcher) Run(ctx context.Context, task string) (string, error) {
	final, _, err := d.RunDetailed(ctx, task)
	return final, err
}

// RunDetailed is Run plus the per-handler outcomes in selection order,
// for callers that record run history.
func (d *Dispatcher) RunDetailed(ctx context.Context, task string) (string, []Outcome, error) {
	runID := uuid.NewString()
	logger := d.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	// Phase 1: routing.
	routingText, err := d.routing.Infer(ctx, task)
	if err != nil {
		metrics.RecordDispatchRun("routing_error", time.Since(start).Seconds())
		return "", nil, fmt.Errorf("routing oracle: %w", err)
	}

	selected, unknown := ParseRouting(routingText, d.universe)
	for _, name := range unknown {
		logger.Warn().Str("handler", name).Msg("Routing returned unrecognized handler, dropping")
	}
	if len(selected) == 0 {
		logger.Warn().Str("response", routingText).Msg("Routing returned no valid handlers")
		metrics.RecordDispatchRun("no_routing", time.Since(start).Seconds())
		return NoRoutingMessage, nil, nil
	}

	logger.Info().Strs("selected", selected).Msg("Routing decision")

	// Phase 2: fan-out. Results land at their selection index so the
	// presentation order never depends on completion timing.
	type invocation struct {
		name    string
		handler Handler
	}
	invocations := make([]invocation, 0, len(selected))
	for _, name := range selected {
		handler, ok := d.handlers[name]
		if !ok {
			logger.Warn().Str("handler", name).Msg("Selected handler not registered, skipping")
			continue
		}
		invocations = append(invocations, invocation{name: name, handler: handler})
	}
	if len(invocations) == 0 {
		metrics.RecordDispatchRun("no_handlers", time.Since(start).Seconds())
		return NoHandlersMessage, nil, nil
	}

	outcomes := make([]Outcome, len(invocations))
	var wg sync.WaitGroup
	for i, inv := range invocations {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			outcomes[i] = d.invoke(ctx, logger, h, task)
		}(i, inv.handler)
	}
	wg.Wait()

	// A cancelled run discards partial outcomes rather than
	// synthesizing an incomplete answer.
	if ctx.Err() != nil {
		metrics.RecordDispatchRun("cancelled", time.Since(start).Seconds())
		return "", nil, ctx.Err()
	}

	// Phase 3: fan-in.
	prompt := SynthesisPrompt(task, outcomes)
	final, err := d.synthesis.Infer(ctx, prompt)
	if err != nil {
		metrics.RecordDispatchRun("synthesis_error", time.Since(start).Seconds())
		return "", outcomes, fmt.Errorf("synthesis oracle: %w", err)
	}

	metrics.RecordDispatchRun("ok", time.Since(start).Seconds())
	logger.Info().Dur("duration", time.Since(start)).Int("handlers", len(outcomes)).Msg("Dispatch complete")

	if final == "" {
		return EmptySynthesisMessage, outcomes, nil
	}
	return final, outcomes, nil
}

func (d *Dispatcher) invoke(ctx context.Context, logger zerolog.Logger, h Handler, task string) Outcome {
	start := time.Now()
	logger.Info().Str("handler", h.Name()).Msg("Invoking handler")

	response, err := h.Invoke(ctx, task)
	if err != nil {
		logger.Error().Err(err).Str("handler", h.Name()).Msg("Handler failed")
		metrics.RecordHandlerInvocation(h.Name(), "error", time.Since(start).Seconds())
		return Outcome{
			Handler:  h.Name(),
			Response: fmt.Sprintf("(error: %v)", err),
			Success:  false,
		}
	}

	if response == "" {
		response = "(no response)"
	}

	logger.Info().
		Str("handler", h.Name()).
		Int("chars", len(response)).
		Dur("duration", time.Since(start)).
		Msg("Handler responded")
	metrics.RecordHandlerInvocation(h.Name(), "ok", time.Since(start).Seconds())

	return Outcome{Handler: h.Name(), Response: response, Success: true}
}
