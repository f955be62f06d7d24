// Package toolclient invokes named tools on the opaque tool server that
// backs every SYSTEM_ACTION step and the manager's identity-resolution call.
package toolclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cubeassist/workflow-agent/internal/telemetry"
)

// callBudget bounds a single tool call end to end: session open, initialize,
// call, close. It mirrors the original implementation's asyncio timeout.
const callBudget = 45 * time.Second

var (
	// ErrTimeout is returned when a call exceeds callBudget.
	ErrTimeout = errors.New("toolclient: call timed out")
	// ErrTransport is returned for connection-level failures opening or
	// driving the MCP session.
	ErrTransport = errors.New("toolclient: transport error")
	// ErrDecode is returned when a tool reply cannot be decoded as JSON.
	ErrDecode = errors.New("toolclient: could not decode tool reply")
)

// Caller invokes a named tool with an argument map and returns its decoded
// JSON reply. Implemented by Client.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Client calls tools over the MCP Streamable-HTTP transport, opening a fresh
// session per call: open, initialize, call, close. This avoids holding a
// long-lived session across step executions that may be minutes apart.
type Client struct {
	endpoint string
	log      *telemetry.Logger
}

// New returns a Client that dials endpoint for every call.
func New(endpoint string, log *telemetry.Logger) *Client {
	return &Client{endpoint: endpoint, log: log}
}

// Call implements Caller.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, callBudget)
	defer cancel()

	if c.log != nil {
		c.log.Info(ctx, "calling tool", "tool", name, "args", redactArgs(args))
	}

	tr, err := transport.NewStreamableHTTP(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	mcpClient := client.NewClient(tr)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, classifyStartErr(err)
	}
	defer mcpClient.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "workflow-agent", Version: "1.0.0"}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return nil, classifyStartErr(err)
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = args

	res, err := mcpClient.CallTool(ctx, callReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tool %s", ErrTimeout, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return decodeResult(res)
}

// redactArgs masks token-shaped argument values before they reach the log,
// carried from the original implementation's call-tracing decorator.
func redactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = telemetry.Redact(k, v)
	}
	return out
}

func classifyStartErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func decodeResult(res *mcp.CallToolResult) (map[string]any, error) {
	if res == nil || len(res.Content) == 0 {
		return map[string]any{}, nil
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected content type", ErrDecode)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if res.IsError {
		if _, ok := out["error_status"]; !ok {
			out["error_status"] = "error"
		}
	}
	return out, nil
}
