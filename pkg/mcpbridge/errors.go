package mcpbridge

import "fmt"

// ConnectionError indicates the transport or session failed during
// Connect. The bridge ends up closed but remains usable for a retry.
type ConnectionError struct {
	Bridge string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bridge %s: connection failed: %v", e.Bridge, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotConnectedError indicates a bridge operation was attempted outside
// its connected lifetime.
type NotConnectedError struct {
	Bridge string
	State  State
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("bridge %s: not connected (state %s)", e.Bridge, e.State)
}

// ToolInvocationError indicates a single tool call failed. The session
// stays up and subsequent calls may succeed.
type ToolInvocationError struct {
	Bridge string
	Tool   string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("bridge %s: tool %s failed: %v", e.Bridge, e.Tool, e.Err)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}
