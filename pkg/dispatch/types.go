// Package dispatch implements the two-phase parallel workflow: a
// routing oracle selects a subset of handlers, the selected handlers
// run concurrently against the task, and a synthesis oracle folds
// every outcome into one final answer. Individual handler failures are
// absorbed into the outcome sequence and never abort the run.
package dispatch

import "context"

// Oracle is an opaque text-in/text-out inference function. Both the
// routing and synthesis phases consume one.
type Oracle interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Handler is an independently invocable unit fronting one backend
// specialty. Implementations return text or a well-formed error; they
// must not panic past their boundary.
type Handler interface {
	Name() string
	Invoke(ctx context.Context, task string) (string, error)
}

// Outcome records the result of one handler invocation within one run.
// Outcomes are collected in selection order, not completion order.
type Outcome struct {
	Handler  string `json:"handler"`
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

// Infer calls the wrapped function.
func (f OracleFunc) Infer(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
