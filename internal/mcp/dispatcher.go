// Package mcp exposes the SQLite tools to MCP clients. The Dispatcher turns
// a tool call into exactly one result envelope; NewServer registers it on an
// mcp-go server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pkg/idgen"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hazyhaar/sqlitemcp/internal/db"
	"github.com/hazyhaar/sqlitemcp/internal/schema"
	"github.com/hazyhaar/sqlitemcp/pkg/audit"
	"github.com/hazyhaar/sqlitemcp/pkg/kit"
)

// Gateway is the database surface the tools need. *db.Gateway implements it.
type Gateway interface {
	Query(ctx context.Context, query string) ([]db.Row, error)
	Execute(ctx context.Context, query string) (db.ExecResult, error)
	ListTables(ctx context.Context) ([]db.Table, error)
	DescribeTable(ctx context.Context, table string) ([]db.Column, error)
}

// Options configure a Dispatcher.
type Options struct {
	// Strict rejects SQL text holding more than one statement.
	Strict bool
	// Audit, when set, receives one entry per tool invocation.
	Audit  audit.Logger
	Logger *slog.Logger
}

type binding struct {
	decode   func(schema.Arguments) any
	endpoint kit.Endpoint
}

// Dispatcher routes tool calls. It keeps no state between calls.
type Dispatcher struct {
	registry *schema.Registry
	bindings map[string]binding
	logger   *slog.Logger
}

func NewDispatcher(reg *schema.Registry, gw Gateway, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{
		registry: reg,
		bindings: bindTools(gw, opts.Strict),
		logger:   opts.Logger,
	}
	for _, t := range reg.ListTools() {
		b, ok := d.bindings[t.Name]
		if !ok {
			panic("mcp: no endpoint bound for tool " + t.Name)
		}
		if opts.Audit != nil {
			b.endpoint = audit.Middleware(opts.Audit, t.Name)(b.endpoint)
			d.bindings[t.Name] = b
		}
	}
	return d
}

// ListTools returns the discovery listing in registry order.
func (d *Dispatcher) ListTools() []mcp.Tool {
	tools := d.registry.ListTools()
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, mcp.NewToolWithRawSchema(t.Name, t.Description, schema.Describe(t)))
	}
	return out
}

// Call runs one tool invocation. It always returns a well-formed result;
// failures come back as IsError results carrying "Error: <message>".
func (d *Dispatcher) Call(ctx context.Context, name string, arguments any) (res *mcp.CallToolResult) {
	start := time.Now()
	id := idgen.New()
	ctx = kit.WithRequestID(ctx, id)
	if kit.GetTraceID(ctx) == "" {
		ctx = kit.WithTraceID(ctx, id)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool call panicked", "tool", name, "request_id", id, "panic", r)
			res = errorResult(fmt.Errorf("internal error: %v", r))
		}
		d.logger.Debug("tool call",
			"tool", name,
			"request_id", id,
			"is_error", res.IsError,
			"duration", time.Since(start),
		)
	}()

	out, err := d.invoke(ctx, name, arguments)
	if err != nil {
		d.logger.Info("tool call failed", "tool", name, "request_id", id, "error", err)
		return errorResult(err)
	}
	text, err := render(out)
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(text)
}

func (d *Dispatcher) invoke(ctx context.Context, name string, arguments any) (any, error) {
	tool, err := d.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	args, err := schema.Validate(tool, arguments)
	if err != nil {
		return nil, err
	}
	b := d.bindings[tool.Name]
	return b.endpoint(ctx, b.decode(args))
}

// message is a result rendered verbatim rather than as JSON.
type message string

func render(out any) (string, error) {
	if m, ok := out.(message); ok {
		return string(m), nil
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(data), nil
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + err.Error())
}

// asValidation reports an invalid table name as an argument error.
func asValidation(tool string, err error) error {
	var ierr *db.InvalidIdentifierError
	if errors.As(err, &ierr) {
		return &schema.ValidationError{Tool: tool, Reasons: []string{ierr.Error()}}
	}
	return err
}
