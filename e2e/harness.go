// E2E test harness: spawns the sqlitemcp binary on a temp database and talks
// MCP JSON-RPC to it over stdin/stdout.
package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

// TestHarness manages a sqlitemcp subprocess.
type TestHarness struct {
	DataDir string
	DBPath  string
	OpsPath string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	stderr *syncBuffer
	nextID int
	mu     sync.Mutex
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// ToolResult is the decoded tools/call result.
type ToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Text returns the single text payload.
func (r *ToolResult) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// NewHarness writes a config, starts sqlitemcp and completes the MCP handshake.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	// Manual cleanup: t.TempDir() would vanish when the first test finishes,
	// while the harness is shared across tests.
	dataDir, err := os.MkdirTemp("", "sqlitemcp-e2e-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	dbPath := filepath.Join(dataDir, "user.db")
	opsPath := filepath.Join(dataDir, "ops.db")

	config := fmt.Sprintf(`[server]
name = "sqlite-e2e"

[log]
level = "debug"

[ops]
path = %q
audit = true
trace = true
`, opsPath)
	configPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "sqlitemcp"))
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatalf("binary not found at %s: run go build -o sqlitemcp . in the module root", binary)
	}

	cmd := exec.Command(binary, "--config", configPath, dbPath)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sqlitemcp: %v", err)
	}

	h := &TestHarness{
		DataDir: dataDir,
		DBPath:  dbPath,
		OpsPath: opsPath,
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan []byte, 64),
		stderr:  stderr,
	}
	go h.readLoop(stdout)

	if _, rerr, err := h.Request("initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "sqlitemcp-e2e", "version": "0"},
	}); err != nil || rerr != nil {
		h.Stop()
		t.Fatalf("initialize failed: err=%v rpc=%v\nstderr:\n%s", err, rerr, stderr.String())
	}
	if err := h.send(map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"}); err != nil {
		h.Stop()
		t.Fatalf("initialized notification: %v", err)
	}
	return h
}

func (h *TestHarness) readLoop(r io.Reader) {
	defer close(h.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		h.lines <- line
	}
}

func (h *TestHarness) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = h.stdin.Write(append(data, '\n'))
	return err
}

// Request sends one JSON-RPC request and waits for the matching response.
// Every stdout line must be a JSON-RPC message.
func (h *TestHarness) Request(method string, params any) (json.RawMessage, *RPCError, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if err := h.send(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}); err != nil {
		return nil, nil, fmt.Errorf("sending %s: %w", method, err)
	}

	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-h.lines:
			if !ok {
				return nil, nil, fmt.Errorf("stdout closed waiting for %s", method)
			}
			var resp rpcResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return nil, nil, fmt.Errorf("non-JSON line on stdout: %q", line)
			}
			if resp.ID == nil || *resp.ID != id {
				continue
			}
			return resp.Result, resp.Error, nil
		case <-timeout:
			return nil, nil, fmt.Errorf("timeout waiting for %s", method)
		}
	}
}

// CallTool invokes tools/call and decodes the result.
func (h *TestHarness) CallTool(t *testing.T, name string, args any) *ToolResult {
	t.Helper()
	raw, rerr, err := h.Request("tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("tools/call %s: %v", name, err)
	}
	if rerr != nil {
		t.Fatalf("tools/call %s: rpc error %d %s", name, rerr.Code, rerr.Message)
	}
	var res ToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decoding %s result: %v", name, err)
	}
	return &res
}

// Stderr returns everything the server wrote to its diagnostic stream.
func (h *TestHarness) Stderr() string { return h.stderr.String() }

// Stop closes stdin, waits 5s for exit, then SIGKILL. Cleans up the data directory.
func (h *TestHarness) Stop() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.stdin.Close()
	h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}

	if h.DataDir != "" {
		os.RemoveAll(h.DataDir)
	}
}
