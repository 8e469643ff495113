package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const protocolVersion = "2024-11-05"

// Transport dials an MCP server and produces a Session. Implementations
// must return sessions whose lifetime is fully bracketed by Dial/Close:
// the bridge worker is the only goroutine that ever touches a session.
type Transport interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is a live connection to an MCP server. It is not safe for
// concurrent use; the bridge serializes all access onto its worker.
type Session interface {
	// Initialize performs the MCP handshake.
	Initialize(ctx context.Context) error

	// ListTools fetches one page of the tool listing. An empty cursor
	// requests the first page.
	ListTools(ctx context.Context, cursor string) (ToolPage, error)

	// CallTool invokes a tool and returns its flattened text content.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)

	// Close releases the underlying connection.
	Close() error
}

// JSON-RPC 2.0 messages
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// rpcCore tracks in-flight requests for a JSON-RPC connection. Both the
// stdio and websocket sessions share it: send pushes bytes onto the
// wire, a reader goroutine feeds responses back through dispatch.
type rpcCore struct {
	send func(data []byte) error

	mu      sync.Mutex
	id      int
	pending map[int]chan *rpcResponse

	callTimeout time.Duration
}

func newRPCCore(send func([]byte) error, callTimeout time.Duration) *rpcCore {
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &rpcCore{
		send:        send,
		pending:     make(map[int]chan *rpcResponse),
		callTimeout: callTimeout,
	}
}

// call sends a request and waits for the matching response.
func (c *rpcCore) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	c.id++
	id := c.id
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.drop(id)
		return nil, err
	}

	if err := c.send(data); err != nil {
		c.drop(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("connection closed while waiting for %s", method)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	case <-time.After(c.callTimeout):
		c.drop(id)
		return nil, fmt.Errorf("rpc request timeout for %s", method)
	}
}

// notify sends a request that expects no response.
func (c *rpcCore) notify(method string, params interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.send(data)
}

// dispatch routes an incoming response to its waiter. Responses with
// unknown or missing IDs (server notifications) are ignored.
func (c *rpcCore) dispatch(resp *rpcResponse) {
	id, ok := resp.ID.(float64)
	if !ok {
		return
	}

	c.mu.Lock()
	ch, exists := c.pending[int(id)]
	if exists {
		delete(c.pending, int(id))
	}
	c.mu.Unlock()

	if exists {
		ch <- resp
	}
}

// fail unblocks every waiter when the connection dies.
func (c *rpcCore) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

func (c *rpcCore) drop(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func initializeParams(clientName string) map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": "0.1.0",
		},
	}
}

func listToolsPage(ctx context.Context, core *rpcCore, cursor string) (ToolPage, error) {
	var params interface{}
	if cursor != "" {
		params = map[string]interface{}{"cursor": cursor}
	}

	resp, err := core.call(ctx, "tools/list", params)
	if err != nil {
		return ToolPage{}, err
	}

	var page ToolPage
	if err := json.Unmarshal(resp.Result, &page); err != nil {
		return ToolPage{}, fmt.Errorf("failed to parse tools/list result: %w", err)
	}
	return page, nil
}

func callTool(ctx context.Context, core *rpcCore, name string, args map[string]interface{}) (string, error) {
	resp, err := core.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Content []toolContent `json:"content"`
		IsError bool          `json:"isError"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("failed to parse tools/call result: %w", err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool reported error: %s", text)
	}
	return text, nil
}

type toolContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// flattenContent converts MCP content parts into a single string. Text
// parts are joined by newlines, non-text parts become placeholders.
func flattenContent(parts []toolContent) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, p.Text)
		case "image":
			out = append(out, fmt.Sprintf("[image: %s]", p.MimeType))
		case "resource":
			out = append(out, fmt.Sprintf("[resource: %s]", p.URI))
		default:
			out = append(out, fmt.Sprintf("[%s]", p.Type))
		}
	}
	return strings.Join(out, "\n")
}
