// Package mcpbridge exposes a goroutine-safe call interface over an MCP
// session that must be driven from exactly one goroutine.
//
// MCP transports pair a connection and a session whose setup and
// teardown have to happen inside one unbroken scope; entering the pair
// in one call frame and exiting it in another is unsafe for at least
// the subprocess transport. The bridge therefore runs a single worker
// goroutine that owns the session for its entire life and turns every
// external call into a message on a queue, fulfilled through a
// single-assignment result slot. Any number of callers may invoke
// concurrently; the worker executes their calls strictly one at a time
// in arrival order.
package mcpbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/parley/internal/metrics"
)

const (
	defaultGracePeriod = 10 * time.Second
	defaultQueueSize   = 64
)

// Bridge owns one MCP session and serializes all access to it.
type Bridge struct {
	name      string
	transport Transport
	logger    zerolog.Logger
	grace     time.Duration
	queueSize int

	mu         sync.Mutex
	state      State
	tools      []ToolDescriptor
	schemas    map[string]*gojsonschema.Schema
	calls      chan *pendingCall
	ready      chan struct{}
	stop       chan struct{}
	done       chan struct{}
	connectErr error
	cancel     context.CancelFunc
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithGracePeriod sets how long Close waits for the worker to unwind
// before forcing cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(b *Bridge) { b.grace = d }
}

// WithQueueSize sets the pending-call queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) { b.queueSize = n }
}

// New creates a bridge over the given transport. The bridge starts
// disconnected; call Connect before Invoke.
func New(name string, transport Transport, opts ...Option) *Bridge {
	b := &Bridge{
		name:      name,
		transport: transport,
		logger:    zerolog.Nop(),
		grace:     defaultGracePeriod,
		queueSize: defaultQueueSize,
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the bridge name.
func (b *Bridge) Name() string {
	return b.name
}

// Connected reports whether the bridge is ready to accept Invoke calls.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateReady
}

// Tools returns the immutable tool descriptors discovered at connect
// time. The returned slice is a copy.
func (b *Bridge) Tools() []ToolDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ToolDescriptor, len(b.tools))
	copy(out, b.tools)
	return out
}

// Connect starts the session worker and blocks until the session is
// ready or setup fails. Idempotent: if the bridge is already ready it
// returns immediately, and concurrent callers share one worker.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateReady:
		b.mu.Unlock()
		return nil
	case StateConnecting:
		ready := b.ready
		b.mu.Unlock()
		return b.awaitReady(ctx, ready)
	case StateDraining:
		b.mu.Unlock()
		return &NotConnectedError{Bridge: b.name, State: StateDraining}
	}

	// Disconnected or Closed: start a fresh worker epoch.
	b.state = StateConnecting
	b.connectErr = nil
	b.ready = make(chan struct{})
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.calls = make(chan *pendingCall, b.queueSize)
	workerCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	ready := b.ready
	b.mu.Unlock()

	go b.runSession(workerCtx)

	return b.awaitReady(ctx, ready)
}

func (b *Bridge) awaitReady(ctx context.Context, ready chan struct{}) error {
	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateReady {
		return nil
	}
	if b.connectErr != nil {
		return b.connectErr
	}
	return &NotConnectedError{Bridge: b.name, State: b.state}
}

// Invoke executes a tool call through the session worker. It blocks
// until the worker fulfils the call or ctx is cancelled. A failed
// backend call returns a ToolInvocationError and leaves the session
// usable for subsequent calls.
func (b *Bridge) Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	b.mu.Lock()
	if b.state != StateReady {
		state := b.state
		b.mu.Unlock()
		return "", &NotConnectedError{Bridge: b.name, State: state}
	}
	calls := b.calls
	schema := b.schemas[tool]
	b.mu.Unlock()

	if schema != nil {
		if err := validateArgs(schema, args); err != nil {
			return "", &ToolInvocationError{Bridge: b.name, Tool: tool, Err: err}
		}
	}

	call := &pendingCall{
		id:     gonanoid.Must(10),
		tool:   tool,
		args:   args,
		result: make(chan callResult, 1),
	}

	start := time.Now()
	select {
	case calls <- call:
		metrics.SetBridgeQueueDepth(b.name, len(calls))
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-call.result:
		status := "ok"
		if res.err != nil {
			status = "error"
		}
		metrics.RecordToolCall(b.name, status, time.Since(start).Seconds())
		return res.text, res.err
	case <-ctx.Done():
		// The worker still fulfils the slot; the buffered channel
		// keeps it from blocking on the abandoned call.
		return "", ctx.Err()
	}
}

// Close shuts the bridge down. It signals the worker to stop, waits up
// to the grace period for a clean unwind, then forces cancellation.
// Idempotent; always leaves the bridge closed with its tools cleared.
func (b *Bridge) Close() error {
	b.mu.Lock()
	switch b.state {
	case StateDisconnected, StateClosed:
		b.state = StateClosed
		b.tools = nil
		b.schemas = nil
		b.mu.Unlock()
		return nil
	case StateDraining:
		// Another Close is in flight; wait for it to finish.
		done := b.done
		b.mu.Unlock()
		<-done
		b.finishClose()
		return nil
	}

	// Ready or Connecting: this caller owns the shutdown.
	b.state = StateDraining
	stop := b.stop
	done := b.done
	cancel := b.cancel
	b.mu.Unlock()

	close(stop)

	select {
	case <-done:
	case <-time.After(b.grace):
		b.logger.Warn().Str("bridge", b.name).Msg("Worker did not stop in time, forcing cancellation")
		cancel()
		<-done
	}
	cancel()

	b.finishClose()
	return nil
}

func (b *Bridge) finishClose() {
	b.mu.Lock()
	b.state = StateClosed
	b.tools = nil
	b.schemas = nil
	b.mu.Unlock()
	metrics.SetBridgeQueueDepth(b.name, 0)
}

// runSession is the worker goroutine. It holds the transport and
// session inside one scope for the session's whole life: dial,
// handshake, tool discovery, the serve loop, then teardown on return.
func (b *Bridge) runSession(ctx context.Context) {
	defer close(b.done)

	session, err := b.transport.Dial(ctx)
	if err != nil {
		b.failConnect(fmt.Errorf("dial: %w", err))
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			b.logger.Debug().Err(cerr).Str("bridge", b.name).Msg("Session close error")
		}
	}()

	if err := session.Initialize(ctx); err != nil {
		b.failConnect(fmt.Errorf("initialize: %w", err))
		return
	}

	tools, err := b.discoverTools(ctx, session)
	if err != nil {
		b.failConnect(fmt.Errorf("list tools: %w", err))
		return
	}

	b.mu.Lock()
	b.tools = tools
	b.schemas = compileSchemas(tools)
	b.state = StateReady
	close(b.ready)
	b.mu.Unlock()

	b.logger.Info().Str("bridge", b.name).Int("tools", len(tools)).Msg("Session ready")

	b.serve(ctx, session)
	b.drainPending()
}

// drainPending fails any calls that were queued but never reached the
// session before shutdown, so their callers are not stranded.
func (b *Bridge) drainPending() {
	for {
		select {
		case call := <-b.calls:
			call.result <- callResult{err: &NotConnectedError{Bridge: b.name, State: StateDraining}}
		default:
			return
		}
	}
}

// discoverTools paginates tools/list until no continuation cursor
// remains.
func (b *Bridge) discoverTools(ctx context.Context, session Session) ([]ToolDescriptor, error) {
	var tools []ToolDescriptor
	cursor := ""
	for {
		page, err := session.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// serve drains the pending-call queue until stopped. Every dequeued
// call has its result slot fulfilled, success or failure, so callers
// never block forever.
func (b *Bridge) serve(ctx context.Context, session Session) {
	for {
		select {
		case call := <-b.calls:
			metrics.SetBridgeQueueDepth(b.name, len(b.calls))
			b.execute(ctx, session, call)
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) execute(ctx context.Context, session Session, call *pendingCall) {
	defer func() {
		if r := recover(); r != nil {
			call.result <- callResult{err: &ToolInvocationError{
				Bridge: b.name,
				Tool:   call.tool,
				Err:    fmt.Errorf("panic in tool call: %v", r),
			}}
		}
	}()

	b.logger.Debug().
		Str("bridge", b.name).
		Str("call_id", call.id).
		Str("tool", call.tool).
		Msg("Executing tool call")

	text, err := session.CallTool(ctx, call.tool, call.args)
	if err != nil {
		b.logger.Warn().
			Err(err).
			Str("bridge", b.name).
			Str("call_id", call.id).
			Str("tool", call.tool).
			Msg("Tool call failed")
		call.result <- callResult{err: &ToolInvocationError{Bridge: b.name, Tool: call.tool, Err: err}}
		return
	}

	call.result <- callResult{text: text}
}

func (b *Bridge) failConnect(err error) {
	b.logger.Error().Err(err).Str("bridge", b.name).Msg("Session setup failed")

	b.mu.Lock()
	b.connectErr = &ConnectionError{Bridge: b.name, Err: err}
	if b.state == StateConnecting {
		b.state = StateClosed
		close(b.ready)
	} else {
		// Close raced with the failing setup; ready must still be
		// signalled so waiters unblock.
		select {
		case <-b.ready:
		default:
			close(b.ready)
		}
		b.state = StateClosed
	}
	b.tools = nil
	b.schemas = nil
	b.mu.Unlock()
}
