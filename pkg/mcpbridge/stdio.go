package mcpbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// StdioTransport runs an MCP server as a subprocess and speaks JSON-RPC
// over its stdin/stdout, one message per line.
type StdioTransport struct {
	ClientName  string
	Command     string
	Args        []string
	Env         map[string]string
	CallTimeout time.Duration
}

// Dial starts the subprocess and returns a session bound to it.
func (t *StdioTransport) Dial(ctx context.Context) (Session, error) {
	if t.Command == "" {
		return nil, fmt.Errorf("stdio transport requires a command")
	}

	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	if len(t.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range t.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", t.Command, err)
	}

	s := &stdioSession{
		clientName: t.ClientName,
		process:    cmd,
		stdin:      stdin,
	}
	s.core = newRPCCore(s.write, t.CallTimeout)

	go s.listen(bufio.NewScanner(stdout))

	return s, nil
}

type stdioSession struct {
	clientName string
	process    *exec.Cmd
	stdin      io.WriteCloser
	core       *rpcCore
}

func (s *stdioSession) write(data []byte) error {
	_, err := s.stdin.Write(append(data, '\n'))
	return err
}

func (s *stdioSession) listen(scanner *bufio.Scanner) {
	// Large tool results can exceed the default scanner buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		var resp rpcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal MCP response")
			continue
		}
		s.core.dispatch(&resp)
	}
	s.core.fail()
}

func (s *stdioSession) Initialize(ctx context.Context) error {
	if _, err := s.core.call(ctx, "initialize", initializeParams(s.clientName)); err != nil {
		return err
	}
	return s.core.notify("notifications/initialized", nil)
}

func (s *stdioSession) ListTools(ctx context.Context, cursor string) (ToolPage, error) {
	return listToolsPage(ctx, s.core, cursor)
}

func (s *stdioSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return callTool(ctx, s.core, name, args)
}

func (s *stdioSession) Close() error {
	_ = s.stdin.Close()
	if s.process != nil && s.process.Process != nil {
		_ = s.process.Process.Kill()
		_ = s.process.Wait()
	}
	return nil
}
