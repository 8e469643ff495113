package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOracle is a scriptable Oracle that records its prompts.
type mockOracle struct {
	inferFunc func(ctx context.Context, prompt string) (string, error)
	mu        sync.Mutex
	prompts   []string
}

func (m *mockOracle) Infer(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.inferFunc != nil {
		return m.inferFunc(ctx, prompt)
	}
	return "", nil
}

func (m *mockOracle) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// mockHandler is a scriptable Handler.
type mockHandler struct {
	name       string
	invokeFunc func(ctx context.Context, task string) (string, error)
	calls      int32
}

func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) Invoke(ctx context.Context, task string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, task)
	}
	return "done", nil
}

func newTestDispatcher(t *testing.T, routing, synthesis *mockOracle, handlers ...Handler) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		Universe:  testUniverse,
		Routing:   routing,
		Synthesis: synthesis,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	for _, h := range handlers {
		d.Register(h)
	}
	return d
}

func fixedOracle(text string) *mockOracle {
	return &mockOracle{inferFunc: func(ctx context.Context, prompt string) (string, error) {
		return text, nil
	}}
}

// TestNew_RequiresOracles tests constructor validation.
func TestNew_RequiresOracles(t *testing.T) {
	_, err := New(Config{Universe: testUniverse, Synthesis: fixedOracle("")})
	assert.ErrorContains(t, err, "routing oracle")

	_, err = New(Config{Universe: testUniverse, Routing: fixedOracle("")})
	assert.ErrorContains(t, err, "synthesis oracle")

	_, err = New(Config{Routing: fixedOracle(""), Synthesis: fixedOracle("")})
	assert.ErrorContains(t, err, "universe")
}

// TestDispatcher_Run_NoValidRouting tests the short-circuit when the
// routing oracle returns only unknown names: fixed message, no handler
// or synthesis invocation.
func TestDispatcher_Run_NoValidRouting(t *testing.T) {
	routing := fixedOracle("FooAgent")
	synthesis := fixedOracle("should not be called")
	handler := &mockHandler{name: "SlackAgent"}
	d := newTestDispatcher(t, routing, synthesis, handler)

	final, err := d.Run(context.Background(), "do something")

	require.NoError(t, err)
	assert.Equal(t, NoRoutingMessage, final)
	assert.Equal(t, int32(0), atomic.LoadInt32(&handler.calls))
	assert.Equal(t, 0, synthesis.callCount())
}

// TestDispatcher_Run_PartialFailure tests fan-out with one succeeding
// and one failing handler: both outcomes reach synthesis in selection
// order and Run never errors.
func TestDispatcher_Run_PartialFailure(t *testing.T) {
	routing := fixedOracle("SlackAgent,JiraAgent")
	synthesis := fixedOracle("combined answer")
	slack := &mockHandler{
		name: "SlackAgent",
		invokeFunc: func(ctx context.Context, task string) (string, error) {
			return "x", nil
		},
	}
	jira := &mockHandler{
		name: "JiraAgent",
		invokeFunc: func(ctx context.Context, task string) (string, error) {
			return "", errors.New("boom")
		},
	}
	d := newTestDispatcher(t, routing, synthesis, slack, jira)

	final, outcomes, err := d.RunDetailed(context.Background(), "cross-check")

	require.NoError(t, err)
	assert.Equal(t, "combined answer", final)

	require.Len(t, outcomes, 2)
	assert.Equal(t, Outcome{Handler: "SlackAgent", Response: "x", Success: true}, outcomes[0])
	assert.Equal(t, "JiraAgent", outcomes[1].Handler)
	assert.False(t, outcomes[1].Success)
	assert.Contains(t, outcomes[1].Response, "boom")

	require.Equal(t, 1, synthesis.callCount())
	prompt := synthesis.prompts[0]
	assert.Contains(t, prompt, "cross-check")
	assert.Contains(t, prompt, "--- SlackAgent ---\nx")
	assert.Contains(t, prompt, "boom")
	assert.Less(t, strings.Index(prompt, "SlackAgent"), strings.Index(prompt, "JiraAgent"))
}

// TestDispatcher_Run_PresentationOrderIgnoresCompletionOrder tests that
// a slow first handler still appears first in the synthesis prompt.
func TestDispatcher_Run_PresentationOrderIgnoresCompletionOrder(t *testing.T) {
	routing := fixedOracle("SlackAgent,JiraAgent,GitHubAgent")
	synthesis := fixedOracle("final")
	slow := &mockHandler{
		name: "SlackAgent",
		invokeFunc: func(ctx context.Context, task string) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "slow-result", nil
		},
	}
	fast := &mockHandler{name: "JiraAgent", invokeFunc: func(ctx context.Context, task string) (string, error) {
		return "fast-result", nil
	}}
	faster := &mockHandler{name: "GitHubAgent", invokeFunc: func(ctx context.Context, task string) (string, error) {
		return "faster-result", nil
	}}
	d := newTestDispatcher(t, routing, synthesis, slow, fast, faster)

	_, outcomes, err := d.RunDetailed(context.Background(), "task")

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "SlackAgent", outcomes[0].Handler)
	assert.Equal(t, "JiraAgent", outcomes[1].Handler)
	assert.Equal(t, "GitHubAgent", outcomes[2].Handler)
}

// TestDispatcher_Run_HandlersRunConcurrently tests that fan-out is
// actually parallel, not sequential.
func TestDispatcher_Run_HandlersRunConcurrently(t *testing.T) {
	routing := fixedOracle("SlackAgent,JiraAgent,GitHubAgent")
	synthesis := fixedOracle("final")

	const delay = 60 * time.Millisecond
	mk := func(name string) *mockHandler {
		return &mockHandler{name: name, invokeFunc: func(ctx context.Context, task string) (string, error) {
			time.Sleep(delay)
			return name, nil
		}}
	}
	d := newTestDispatcher(t, routing, synthesis, mk("SlackAgent"), mk("JiraAgent"), mk("GitHubAgent"))

	start := time.Now()
	_, err := d.Run(context.Background(), "task")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 3*delay, "handlers appear to have run sequentially")
}

// TestDispatcher_Run_MissingRegisteredHandler tests that a selected but
// unregistered handler is skipped, not fatal.
func TestDispatcher_Run_MissingRegisteredHandler(t *testing.T) {
	routing := fixedOracle("SlackAgent,JiraAgent")
	synthesis := fixedOracle("final")
	slack := &mockHandler{name: "SlackAgent"}
	// JiraAgent is in the universe but never registered.
	d := newTestDispatcher(t, routing, synthesis, slack)

	final, outcomes, err := d.RunDetailed(context.Background(), "task")

	require.NoError(t, err)
	assert.Equal(t, "final", final)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "SlackAgent", outcomes[0].Handler)
}

// TestDispatcher_Run_AllSelectedHandlersMissing tests the fixed message
// when nothing selected is registered.
func TestDispatcher_Run_AllSelectedHandlersMissing(t *testing.T) {
	routing := fixedOracle("JiraAgent")
	synthesis := fixedOracle("final")
	d := newTestDispatcher(t, routing, synthesis)

	final, err := d.Run(context.Background(), "task")

	require.NoError(t, err)
	assert.Equal(t, NoHandlersMessage, final)
	assert.Equal(t, 0, synthesis.callCount())
}

// TestDispatcher_Run_EmptySynthesis tests the fixed fallback message
// instead of an empty string.
func TestDispatcher_Run_EmptySynthesis(t *testing.T) {
	routing := fixedOracle("SlackAgent")
	synthesis := fixedOracle("")
	d := newTestDispatcher(t, routing, synthesis, &mockHandler{name: "SlackAgent"})

	final, err := d.Run(context.Background(), "task")

	require.NoError(t, err)
	assert.Equal(t, EmptySynthesisMessage, final)
}

// TestDispatcher_Run_RoutingOracleFailure tests that an unrecoverable
// routing oracle failure propagates.
func TestDispatcher_Run_RoutingOracleFailure(t *testing.T) {
	routing := &mockOracle{inferFunc: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("transport down")
	}}
	d := newTestDispatcher(t, routing, fixedOracle("final"), &mockHandler{name: "SlackAgent"})

	_, err := d.Run(context.Background(), "task")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing oracle")
}

// TestDispatcher_Run_SynthesisOracleFailure tests that an unrecoverable
// synthesis oracle failure propagates.
func TestDispatcher_Run_SynthesisOracleFailure(t *testing.T) {
	routing := fixedOracle("SlackAgent")
	synthesis := &mockOracle{inferFunc: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("transport down")
	}}
	d := newTestDispatcher(t, routing, synthesis, &mockHandler{name: "SlackAgent"})

	_, err := d.Run(context.Background(), "task")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis oracle")
}

// TestDispatcher_Run_CancelledMidFanout tests that cancellation during
// fan-out discards partial outcomes and returns the context error.
func TestDispatcher_Run_CancelledMidFanout(t *testing.T) {
	routing := fixedOracle("SlackAgent,JiraAgent")
	synthesis := fixedOracle("should not be called")
	fast := &mockHandler{name: "SlackAgent", invokeFunc: func(ctx context.Context, task string) (string, error) {
		return "done", nil
	}}
	slow := &mockHandler{name: "JiraAgent", invokeFunc: func(ctx context.Context, task string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	d := newTestDispatcher(t, routing, synthesis, fast, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := d.Run(ctx, "task")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, synthesis.callCount(), "partial outcomes must not be synthesized")
}

// TestSynthesisPrompt tests the fan-in prompt layout.
func TestSynthesisPrompt(t *testing.T) {
	outcomes := []Outcome{
		{Handler: "SlackAgent", Response: "12 channels", Success: true},
		{Handler: "JiraAgent", Response: "(error: boom)", Success: false},
	}

	prompt := SynthesisPrompt("list everything", outcomes)

	assert.Contains(t, prompt, "ORIGINAL USER REQUEST:\nlist everything")
	assert.Contains(t, prompt, "--- SlackAgent ---\n12 channels")
	assert.Contains(t, prompt, "--- JiraAgent ---\n(error: boom)")
	assert.Contains(t, prompt, "synthesize the above results")
}
