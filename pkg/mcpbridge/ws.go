package mcpbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSTransport connects to a remote MCP server over a websocket
// endpoint, with optional headers for authentication.
type WSTransport struct {
	ClientName  string
	URL         string
	Headers     map[string]string
	CallTimeout time.Duration
}

// Dial opens the websocket connection and returns a session bound to it.
func (t *WSTransport) Dial(ctx context.Context) (Session, error) {
	header := http.Header{}
	for k, v := range t.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		return nil, err
	}

	s := &wsSession{
		clientName: t.ClientName,
		conn:       conn,
	}
	s.core = newRPCCore(s.write, t.CallTimeout)

	go s.listen()

	return s, nil
}

type wsSession struct {
	clientName string
	conn       *websocket.Conn
	writeMu    sync.Mutex
	core       *rpcCore
}

func (s *wsSession) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) listen() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.core.fail()
			return
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal MCP response")
			continue
		}
		s.core.dispatch(&resp)
	}
}

func (s *wsSession) Initialize(ctx context.Context) error {
	if _, err := s.core.call(ctx, "initialize", initializeParams(s.clientName)); err != nil {
		return err
	}
	return s.core.notify("notifications/initialized", nil)
}

func (s *wsSession) ListTools(ctx context.Context, cursor string) (ToolPage, error) {
	return listToolsPage(ctx, s.core, cursor)
}

func (s *wsSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return callTool(ctx, s.core, name, args)
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}
