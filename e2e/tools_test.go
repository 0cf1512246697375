package e2e

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStartupDiagnostics(t *testing.T) {
	h, _ := ensureHarness(t)
	stderr := h.Stderr()
	if !strings.Contains(stderr, "sqlite mcp server ready") {
		t.Errorf("ready message missing from stderr:\n%s", stderr)
	}
	if !strings.Contains(stderr, h.DBPath) {
		t.Errorf("database path missing from stderr:\n%s", stderr)
	}
}

func TestToolsList(t *testing.T) {
	h, _ := ensureHarness(t)
	raw, rerr, err := h.Request("tools/list", map[string]any{})
	if err != nil || rerr != nil {
		t.Fatalf("tools/list: err=%v rpc=%v", err, rerr)
	}
	var res struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			InputSchema struct {
				Type       string                     `json:"type"`
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	required := map[string]string{
		"read_query":     "query",
		"write_query":    "query",
		"create_table":   "query",
		"list_tables":    "",
		"describe_table": "table_name",
	}
	if len(res.Tools) != len(required) {
		t.Fatalf("got %d tools, want %d", len(res.Tools), len(required))
	}
	for _, tool := range res.Tools {
		field, ok := required[tool.Name]
		if !ok {
			t.Errorf("unexpected tool %s", tool.Name)
			continue
		}
		if tool.InputSchema.Type != "object" {
			t.Errorf("%s: schema type %q", tool.Name, tool.InputSchema.Type)
		}
		if field == "" {
			if len(tool.InputSchema.Required) != 0 {
				t.Errorf("%s: required = %v", tool.Name, tool.InputSchema.Required)
			}
			continue
		}
		if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != field {
			t.Errorf("%s: required = %v, want [%s]", tool.Name, tool.InputSchema.Required, field)
		}
		if _, ok := tool.InputSchema.Properties[field]; !ok {
			t.Errorf("%s: property %s missing", tool.Name, field)
		}
	}
}

func TestCreateInsertRead(t *testing.T) {
	h, d := ensureHarness(t)

	res := h.CallTool(t, "create_table", map[string]any{"query": "CREATE TABLE e2e_items (id INTEGER PRIMARY KEY, label TEXT)"})
	if res.IsError || res.Text() != "Table created successfully" {
		t.Fatalf("create_table: %+v", res)
	}
	d.AssertTableExists(t, "e2e_items", true)

	res = h.CallTool(t, "write_query", map[string]any{"query": "INSERT INTO e2e_items (label) VALUES ('widget')"})
	if res.IsError || !strings.Contains(res.Text(), `"affected_rows": 1`) {
		t.Fatalf("write_query: %+v", res)
	}
	d.AssertRowCount(t, "e2e_items", 1)

	res = h.CallTool(t, "read_query", map[string]any{"query": "SELECT label FROM e2e_items"})
	if res.IsError || !strings.Contains(res.Text(), `"label": "widget"`) {
		t.Fatalf("read_query: %+v", res)
	}

	res = h.CallTool(t, "describe_table", map[string]any{"table_name": "e2e_items"})
	if res.IsError || !strings.Contains(res.Text(), `"name": "label"`) || !strings.Contains(res.Text(), `"type": "TEXT"`) {
		t.Fatalf("describe_table: %+v", res)
	}

	res = h.CallTool(t, "list_tables", map[string]any{})
	if res.IsError || !strings.Contains(res.Text(), `"name": "e2e_items"`) {
		t.Fatalf("list_tables: %+v", res)
	}
	if strings.Contains(res.Text(), "audit_log") || strings.Contains(res.Text(), "sql_traces") {
		t.Errorf("ops tables leaked into the user database: %s", res.Text())
	}
}

func TestGatingOverTheWire(t *testing.T) {
	h, d := ensureHarness(t)
	h.CallTool(t, "create_table", map[string]any{"query": "CREATE TABLE e2e_gate (x INTEGER)"})

	res := h.CallTool(t, "read_query", map[string]any{"query": "INSERT INTO e2e_gate VALUES (1)"})
	if !res.IsError || !strings.HasPrefix(res.Text(), "Error: ") {
		t.Fatalf("read_query with INSERT: %+v", res)
	}
	d.AssertRowCount(t, "e2e_gate", 0)

	res = h.CallTool(t, "create_table", map[string]any{"query": "INSERT INTO e2e_gate VALUES (1)"})
	if !res.IsError {
		t.Fatalf("create_table with INSERT: %+v", res)
	}
	d.AssertRowCount(t, "e2e_gate", 0)

	res = h.CallTool(t, "write_query", map[string]any{"query": "SELECT * FROM e2e_gate"})
	if !res.IsError {
		t.Fatalf("write_query with SELECT: %+v", res)
	}
}

func TestErrorsNeverKillTheServer(t *testing.T) {
	h, _ := ensureHarness(t)
	bad := []struct {
		tool string
		args any
	}{
		{"read_query", map[string]any{}},
		{"write_query", map[string]any{"query": 1}},
		{"create_table", map[string]any{"query": nil}},
		{"describe_table", map[string]any{"table_name": "x; DROP TABLE e2e_items"}},
		{"read_query", map[string]any{"query": "SELECT * FROM nowhere"}},
		{"drop_database", map[string]any{}},
	}
	for _, b := range bad {
		res := h.CallTool(t, b.tool, b.args)
		if !res.IsError || !strings.HasPrefix(res.Text(), "Error: ") {
			t.Errorf("%s(%v): %+v", b.tool, b.args, res)
		}
	}

	res := h.CallTool(t, "read_query", map[string]any{"query": "SELECT 1 AS alive"})
	if res.IsError || !strings.Contains(res.Text(), `"alive": 1`) {
		t.Fatalf("server unhealthy after errors: %+v", res)
	}
}

func TestUnknownToolIsErrorResult(t *testing.T) {
	h, _ := ensureHarness(t)
	res := h.CallTool(t, "drop_database", map[string]any{})
	if !res.IsError {
		t.Fatalf("unknown tool not flagged as error: %+v", res)
	}
	if got := res.Text(); got != "Error: unknown tool: drop_database" {
		t.Errorf("text = %q", got)
	}
}

func TestAuditPersisted(t *testing.T) {
	h, d := ensureHarness(t)
	before := d.CountAudit(t, "list_tables", "success")
	h.CallTool(t, "list_tables", map[string]any{})

	// audit writes are batched every 500ms
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.CountAudit(t, "list_tables", "success") > before {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Errorf("no audit entry for list_tables after 5s")
}
