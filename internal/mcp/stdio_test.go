package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type rpcReply struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func serveLines(t *testing.T, d *Dispatcher, msgs ...string) map[int]rpcReply {
	t.Helper()
	srv := NewServer(d, "sqlite", "test")
	in := strings.NewReader(strings.Join(msgs, "\n") + "\n")
	var out bytes.Buffer
	if err := Serve(context.Background(), srv, d, in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	replies := map[int]rpcReply{}
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r rpcReply
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("non-JSON output line %q: %v", sc.Text(), err)
		}
		replies[r.ID] = r
	}
	return replies
}

func toolResult(t *testing.T, r rpcReply) toolReply {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("id %d: rpc error %d %s", r.ID, r.Error.Code, r.Error.Message)
	}
	var res toolReply
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("id %d: decode result: %v", r.ID, err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("id %d: content = %+v", r.ID, res.Content)
	}
	return res
}

const initialize = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`

func TestServeUnknownToolIsErrorResult(t *testing.T) {
	d, _ := newDispatcher(t, Options{})
	replies := serveLines(t, d,
		initialize,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"drop_database","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"read_query","arguments":{"query":"SELECT 1 AS one"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/list","params":{}}`,
	)

	if len(replies) != 4 {
		t.Fatalf("got %d replies, want 4: %+v", len(replies), replies)
	}
	if replies[1].Error != nil {
		t.Fatalf("initialize failed: %+v", replies[1].Error)
	}

	unknown := toolResult(t, replies[2])
	if !unknown.IsError {
		t.Error("unknown tool should produce an error result")
	}
	if got := unknown.Content[0].Text; got != "Error: unknown tool: drop_database" {
		t.Errorf("text = %q", got)
	}

	known := toolResult(t, replies[3])
	if known.IsError || !strings.Contains(known.Content[0].Text, `"one": 1`) {
		t.Errorf("read_query = %+v", known)
	}

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(replies[4].Result, &list); err != nil {
		t.Fatalf("decode tools/list: %v", err)
	}
	if len(list.Tools) != 5 {
		t.Errorf("tools/list returned %d tools", len(list.Tools))
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	d, _ := newDispatcher(t, Options{})
	srv := NewServer(d, "sqlite", "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := &blockingReader{done: make(chan struct{})}
	defer close(block.done)

	var out bytes.Buffer
	if err := Serve(ctx, srv, d, block, &out); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type blockingReader struct{ done chan struct{} }

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.done
	return 0, context.Canceled
}
