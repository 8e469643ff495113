package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a scriptable Session that records call activity and
// asserts the bridge never issues reentrant calls.
type fakeSession struct {
	initErr  error
	pages    []ToolPage
	listErr  error
	callFunc func(ctx context.Context, name string, args map[string]interface{}) (string, error)

	inflight    int32
	maxInflight int32
	callCount   int32
	listCount   int32
	closed      atomic.Bool
}

func (s *fakeSession) Initialize(ctx context.Context) error {
	return s.initErr
}

func (s *fakeSession) ListTools(ctx context.Context, cursor string) (ToolPage, error) {
	if s.listErr != nil {
		return ToolPage{}, s.listErr
	}
	idx := int(atomic.AddInt32(&s.listCount, 1)) - 1
	if idx >= len(s.pages) {
		return ToolPage{}, nil
	}
	return s.pages[idx], nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	in := atomic.AddInt32(&s.inflight, 1)
	defer atomic.AddInt32(&s.inflight, -1)
	for {
		max := atomic.LoadInt32(&s.maxInflight)
		if in <= max || atomic.CompareAndSwapInt32(&s.maxInflight, max, in) {
			break
		}
	}
	atomic.AddInt32(&s.callCount, 1)

	if s.callFunc != nil {
		return s.callFunc(ctx, name, args)
	}
	return "ok:" + name, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeTransport hands out scripted sessions and counts dials.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	dialErr  error
	dials    int32
}

func (t *fakeTransport) Dial(ctx context.Context) (Session, error) {
	atomic.AddInt32(&t.dials, 1)
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return &fakeSession{pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}}}, nil
	}
	s := t.sessions[0]
	if len(t.sessions) > 1 {
		t.sessions = t.sessions[1:]
	}
	return s, nil
}

func newTestBridge(t *testing.T, session *fakeSession, opts ...Option) *Bridge {
	t.Helper()
	transport := &fakeTransport{sessions: []*fakeSession{session}}
	return New("test", transport, opts...)
}

// TestBridge_Connect_DiscoversPaginatedTools tests that Connect walks
// every tools/list page until no cursor remains.
func TestBridge_Connect_DiscoversPaginatedTools(t *testing.T) {
	session := &fakeSession{
		pages: []ToolPage{
			{Tools: []ToolDescriptor{{Name: "a"}, {Name: "b"}}, NextCursor: "p2"},
			{Tools: []ToolDescriptor{{Name: "c"}}, NextCursor: "p3"},
			{Tools: []ToolDescriptor{{Name: "d"}}},
		},
	}
	bridge := newTestBridge(t, session)
	defer bridge.Close()

	require.NoError(t, bridge.Connect(context.Background()))

	tools := bridge.Tools()
	require.Len(t, tools, 4)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "d", tools[3].Name)
	assert.True(t, bridge.Connected())
}

// TestBridge_Connect_Idempotent tests that a second Connect on a ready
// bridge is a no-op.
func TestBridge_Connect_Idempotent(t *testing.T) {
	session := &fakeSession{pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}}}
	transport := &fakeTransport{sessions: []*fakeSession{session}}
	bridge := New("test", transport)
	defer bridge.Close()

	require.NoError(t, bridge.Connect(context.Background()))
	require.NoError(t, bridge.Connect(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&transport.dials))
}

// TestBridge_Connect_ConcurrentCallersShareOneWorker tests that racing
// Connect calls produce exactly one session and all callers observe
// readiness.
func TestBridge_Connect_ConcurrentCallersShareOneWorker(t *testing.T) {
	session := &fakeSession{pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}}}
	transport := &fakeTransport{sessions: []*fakeSession{session}}
	bridge := New("test", transport)
	defer bridge.Close()

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = bridge.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&transport.dials))
	assert.True(t, bridge.Connected())
}

// TestBridge_Connect_SetupFailure tests that a failing dial surfaces a
// ConnectionError and leaves the bridge closed but retryable.
func TestBridge_Connect_SetupFailure(t *testing.T) {
	transport := &fakeTransport{dialErr: errors.New("boom")}
	bridge := New("test", transport)

	err := bridge.Connect(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.ErrorContains(t, connErr, "boom")
	assert.False(t, bridge.Connected())

	// Retry succeeds once the transport recovers.
	transport.dialErr = nil
	require.NoError(t, bridge.Connect(context.Background()))
	assert.True(t, bridge.Connected())
	bridge.Close()
}

// TestBridge_Connect_InitializeFailure tests that a failed handshake is
// reported as a ConnectionError.
func TestBridge_Connect_InitializeFailure(t *testing.T) {
	session := &fakeSession{initErr: errors.New("handshake refused")}
	bridge := newTestBridge(t, session)

	err := bridge.Connect(context.Background())
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.True(t, session.closed.Load(), "session must be released on setup failure")
}

// TestBridge_Invoke_BeforeConnect tests the usage-contract error.
func TestBridge_Invoke_BeforeConnect(t *testing.T) {
	bridge := newTestBridge(t, &fakeSession{})

	_, err := bridge.Invoke(context.Background(), "echo", nil)

	var ncErr *NotConnectedError
	require.True(t, errors.As(err, &ncErr))
	assert.Equal(t, StateDisconnected, ncErr.State)
}

// TestBridge_Invoke_AfterClose tests that a closed bridge rejects calls.
func TestBridge_Invoke_AfterClose(t *testing.T) {
	bridge := newTestBridge(t, &fakeSession{pages: []ToolPage{{}}})
	require.NoError(t, bridge.Connect(context.Background()))
	require.NoError(t, bridge.Close())

	_, err := bridge.Invoke(context.Background(), "echo", nil)

	var ncErr *NotConnectedError
	require.True(t, errors.As(err, &ncErr))
}

// TestBridge_Invoke_SerializesConcurrentCallers tests the core
// invariant: N concurrent invokes produce N results and the session
// never sees two calls in flight at once.
func TestBridge_Invoke_SerializesConcurrentCallers(t *testing.T) {
	session := &fakeSession{
		pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}},
		callFunc: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			time.Sleep(2 * time.Millisecond)
			return fmt.Sprintf("result-%v", args["i"]), nil
		},
	}
	bridge := newTestBridge(t, session)
	defer bridge.Close()
	require.NoError(t, bridge.Connect(context.Background()))

	const n = 25
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = bridge.Invoke(context.Background(), "echo", map[string]interface{}{"i": i})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("result-%d", i), results[i])
	}
	assert.Equal(t, int32(n), atomic.LoadInt32(&session.callCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&session.maxInflight), "session saw reentrant calls")
}

// TestBridge_Invoke_ToolFailureDoesNotTearDownSession tests that a
// failed call is recoverable: the next call on the same session works.
func TestBridge_Invoke_ToolFailureDoesNotTearDownSession(t *testing.T) {
	failNext := atomic.Bool{}
	failNext.Store(true)
	session := &fakeSession{
		pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}},
		callFunc: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			if failNext.Swap(false) {
				return "", errors.New("backend exploded")
			}
			return "fine", nil
		},
	}
	bridge := newTestBridge(t, session)
	defer bridge.Close()
	require.NoError(t, bridge.Connect(context.Background()))

	_, err := bridge.Invoke(context.Background(), "echo", nil)
	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "echo", invErr.Tool)

	out, err := bridge.Invoke(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
	assert.True(t, bridge.Connected())
}

// TestBridge_Invoke_RejectsArgsFailingSchema tests that schema
// validation fails fast without reaching the session.
func TestBridge_Invoke_RejectsArgsFailingSchema(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"channel": {"type": "string"}},
		"required": ["channel"]
	}`)
	session := &fakeSession{
		pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "post", InputSchema: schema}}}},
	}
	bridge := newTestBridge(t, session)
	defer bridge.Close()
	require.NoError(t, bridge.Connect(context.Background()))

	_, err := bridge.Invoke(context.Background(), "post", map[string]interface{}{"text": "hi"})

	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&session.callCount), "invalid args must not reach the session")

	out, err := bridge.Invoke(context.Background(), "post", map[string]interface{}{"channel": "#general"})
	require.NoError(t, err)
	assert.Equal(t, "ok:post", out)
}

// TestBridge_Close_Idempotent tests that Close never errors, before
// Connect or called twice.
func TestBridge_Close_Idempotent(t *testing.T) {
	bridge := newTestBridge(t, &fakeSession{pages: []ToolPage{{}}})

	require.NoError(t, bridge.Close())
	require.NoError(t, bridge.Close())

	require.NoError(t, bridge.Connect(context.Background()))
	// A bridge closed once stays retryable, so Connect after Close works.
	require.NoError(t, bridge.Close())
	require.NoError(t, bridge.Close())
	assert.False(t, bridge.Connected())
	assert.Empty(t, bridge.Tools())
}

// TestBridge_Close_ReleasesSession tests that the worker scope unwinds
// the session on a clean shutdown.
func TestBridge_Close_ReleasesSession(t *testing.T) {
	session := &fakeSession{pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "echo"}}}}}
	bridge := newTestBridge(t, session)
	require.NoError(t, bridge.Connect(context.Background()))

	require.NoError(t, bridge.Close())

	assert.True(t, session.closed.Load())
}

// TestBridge_Close_ForcesCancellationOfHungCall tests that Close
// returns within the grace bound even when a backend call hangs
// forever.
func TestBridge_Close_ForcesCancellationOfHungCall(t *testing.T) {
	session := &fakeSession{
		pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "hang"}}}},
		callFunc: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	bridge := newTestBridge(t, session, WithGracePeriod(50*time.Millisecond))
	require.NoError(t, bridge.Connect(context.Background()))

	invokeDone := make(chan error, 1)
	go func() {
		_, err := bridge.Invoke(context.Background(), "hang", nil)
		invokeDone <- err
	}()

	// Let the worker pick up the hanging call.
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		bridge.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not terminate within the grace bound")
	}

	select {
	case err := <-invokeDone:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("hung invoke was never fulfilled")
	}
	assert.False(t, bridge.Connected())
}

// TestBridge_Close_FailsQueuedCalls tests that calls still queued at
// shutdown are failed rather than stranded.
func TestBridge_Close_FailsQueuedCalls(t *testing.T) {
	block := make(chan struct{})
	session := &fakeSession{
		pages: []ToolPage{{Tools: []ToolDescriptor{{Name: "slow"}}}},
		callFunc: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return "done", nil
		},
	}
	bridge := newTestBridge(t, session, WithGracePeriod(50*time.Millisecond))
	require.NoError(t, bridge.Connect(context.Background()))

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := bridge.Invoke(context.Background(), "slow", nil)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, bridge.Close())
	close(block)

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			// First call may complete or be cancelled, queued ones fail.
			_ = err
		case <-time.After(time.Second):
			t.Fatal("queued caller was stranded after Close")
		}
	}
}
