package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/sqlitemcp/pkg/kit"
)

// maxMessageSize bounds one newline-delimited JSON-RPC message.
const maxMessageSize = 16 * 1024 * 1024

// callRequest is the subset of a tools/call request needed to route it.
type callRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"params"`
}

type callResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// Serve reads newline-delimited JSON-RPC messages from in and writes the
// responses to out, one message at a time, until in is exhausted or ctx is
// cancelled. Messages go through srv, except tools/call for names srv does
// not know: those are answered by the dispatcher so an unknown tool yields
// an error result rather than a JSON-RPC error.
func Serve(ctx context.Context, srv *server.MCPServer, d *Dispatcher, in io.Reader, out io.Writer) error {
	ctx = kit.WithTransport(ctx, "stdio")

	lines := make(chan []byte)
	var readErr error
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), maxMessageSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr = sc.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return readErr
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			resp := d.handleMessage(ctx, srv, line)
			if resp == nil {
				continue
			}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, srv *server.MCPServer, line []byte) any {
	var req callRequest
	if err := json.Unmarshal(line, &req); err == nil && req.Method == "tools/call" && len(req.ID) > 0 {
		if _, err := d.registry.Lookup(req.Params.Name); err != nil {
			return callResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Result:  d.Call(ctx, req.Params.Name, req.Params.Arguments),
			}
		}
	}
	if msg := srv.HandleMessage(ctx, line); msg != nil {
		return msg
	}
	return nil
}
