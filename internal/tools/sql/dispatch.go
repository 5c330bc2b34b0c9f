package sqltools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/mysql-mcp/internal/database"
	"github.com/malbeclabs/mysql-mcp/internal/metrics"
)

const (
	defaultMaxConcurrency = 16

	methodCallTool = "tools/call"
)

type Config struct {
	Logger *slog.Logger
	Dialer database.Dialer
	Clock  clockwork.Clock

	// MaxConcurrency bounds the number of tool calls, and so database
	// connections, in flight at once.
	MaxConcurrency int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Dialer == nil {
		return fmt.Errorf("dialer is required")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must not be negative")
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Dispatcher executes tool calls against the database and renders every
// outcome, including failures, as a text result.
type Dispatcher struct {
	log  *slog.Logger
	cfg  Config
	pool pond.ResultPool[string]
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate dispatcher config: %w", err)
	}
	return &Dispatcher{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[string](cfg.MaxConcurrency),
	}, nil
}

// Register adds every tool in the catalog to server, all served by Dispatch.
// Calls naming a tool outside the catalog are answered by Dispatch as well,
// so they come back as error results instead of protocol errors.
func (d *Dispatcher) Register(server *mcp.Server) {
	for _, tool := range Tools() {
		server.AddTool(tool, d.handle)
	}
	server.AddReceivingMiddleware(d.unknownToolMiddleware)
}

func (d *Dispatcher) unknownToolMiddleware(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method == methodCallTool {
			if call, ok := req.(*mcp.CallToolRequest); ok && call.Params != nil && !IsTool(call.Params.Name) {
				return d.Dispatch(ctx, call.Params.Name, call.Params.Arguments), nil
			}
		}
		return next(ctx, method, req)
	}
}

func (d *Dispatcher) handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return d.Dispatch(ctx, req.Params.Name, req.Params.Arguments), nil
}

// Close waits for in-flight calls and rejects new ones.
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) *mcp.CallToolResult {
	start := d.cfg.Clock.Now()
	d.log.Debug("mcp/tool: handling call", "tool", name)

	text, err := d.pool.SubmitErr(func() (text string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("internal error: %v", r)
			}
		}()
		// The call may have waited for a free worker.
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return d.call(ctx, name, args)
	}).Wait()

	toolName := name
	if !IsTool(name) {
		toolName = "unknown"
	}
	status := "success"
	if err != nil {
		status = errorKind(err)
	}
	metrics.ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(toolName).Observe(d.cfg.Clock.Since(start).Seconds())

	if err != nil {
		d.log.Warn("mcp/tool: call failed", "tool", name, "error", err)
		return ErrorResult(err)
	}
	return TextResult(text)
}

func (d *Dispatcher) call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case ToolQuery:
		var req QueryRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		params := make([]any, len(req.Params))
		for i, p := range req.Params {
			params[i] = p
		}
		res, err := database.Query(ctx, d.cfg.Dialer, req.SQL, params)
		if err != nil {
			return "", err
		}
		return renderJSON(res)

	case ToolListTables:
		var req ListTablesRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		rows, err := database.ListTables(ctx, d.cfg.Dialer)
		if err != nil {
			return "", err
		}
		return renderJSON(database.QueryResult{Rows: rows})

	case ToolDescribeTable:
		var req DescribeTableRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		rows, err := database.DescribeTable(ctx, d.cfg.Dialer, req.TableName)
		if err != nil {
			return "", err
		}
		return renderJSON(database.QueryResult{Rows: rows})

	case ToolInsert:
		var req InsertRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		res, err := database.Insert(ctx, d.cfg.Dialer, req.TableName, req.Data)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Inserted successfully. Insert ID: %d", res.InsertID), nil

	case ToolUpdate:
		var req UpdateRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		res, err := database.Update(ctx, d.cfg.Dialer, req.TableName, req.Data, req.Condition)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %d row(s)", res.AffectedRows), nil

	case ToolDelete:
		var req DeleteRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		res, err := database.Delete(ctx, d.cfg.Dialer, req.TableName, req.Condition)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %d row(s)", res.AffectedRows), nil

	case ToolConnectDB:
		var req ConnectRequest
		if err := decodeArgs(name, args, &req); err != nil {
			return "", err
		}
		if err := database.Ping(ctx, d.cfg.Dialer); err != nil {
			return "", err
		}
		return "Successfully connected to the database.", nil

	default:
		return "", &UnknownToolError{Name: name}
	}
}

// decodeArgs decodes args into req. Absent or null arguments leave req at its
// zero value; required fields are not checked here.
func decodeArgs(tool string, args json.RawMessage, req any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(req); err != nil {
		return &InputError{Tool: tool, Err: err}
	}
	return nil
}

func renderJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func ErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
	}
}
