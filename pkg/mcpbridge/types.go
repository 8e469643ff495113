package mcpbridge

import "encoding/json"

// ToolDescriptor describes a single tool discovered from an MCP server.
// The descriptor set is built once during Connect and is immutable until
// the bridge is closed.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolPage is one page of a paginated tools/list result.
type ToolPage struct {
	Tools      []ToolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// State represents the bridge lifecycle state. State is owned by the
// worker goroutine and the bridge mutex; callers observe it through
// Connected().
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateDraining
	StateClosed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// pendingCall is a request handed from a caller to the session worker.
// The result channel is buffered so the worker can always fulfil the
// slot without blocking, even if the caller has given up.
type pendingCall struct {
	id     string
	tool   string
	args   map[string]interface{}
	result chan callResult
}

type callResult struct {
	text string
	err  error
}
