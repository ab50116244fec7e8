// Package mcpclient implements C13, a JSON-RPC 2.0 MCP client speaking to
// either a stdio subprocess or an SSE endpoint, wired on
// github.com/modelcontextprotocol/go-sdk — the teacher's go.mod already
// carries this dependency but never imports it; this is where it gets used.
package mcpclient

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vellumhq/vellum/internal/core"
)

const defaultCallTimeout = 10 * time.Second

// Client wraps one MCP server connection (§4.13 spec.md).
type Client struct {
	cfg     core.MCPServerConfig
	timeout time.Duration

	client  *mcp.Client
	session *mcp.ClientSession
}

// New builds an unconnected Client for cfg. callTimeout defaults to 10s
// when zero; callers override per-tool (e.g. minutes for reindex_vector).
func New(cfg core.MCPServerConfig, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	impl := &mcp.Implementation{Name: "vellum-hub", Version: "1.0.0"}
	return &Client{
		cfg:     cfg,
		timeout: callTimeout,
		client:  mcp.NewClient(impl, nil),
	}
}

// Connect performs the initialize handshake over the configured transport.
func (c *Client) Connect(ctx context.Context) error {
	transport, err := c.transport()
	if err != nil {
		return err
	}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpclient: connect %s: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) transport() (mcp.Transport, error) {
	if c.cfg.IsSSE() {
		return &mcp.SSEClientTransport{Endpoint: c.cfg.URL}, nil
	}
	if c.cfg.Command == "" {
		return nil, fmt.Errorf("mcpclient: server %s has neither url nor command", c.cfg.Name)
	}
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	if c.cfg.Cwd != "" {
		cmd.Dir = c.cfg.Cwd
	}
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// ListTools returns the server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]core.ToolSpec, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcpclient: %s not connected", c.cfg.Name)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.session.ListTools(callCtx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list tools %s: %w", c.cfg.Name, err)
	}

	specs := make([]core.ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		specs = append(specs, core.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return specs, nil
}

// CallTool invokes name with args, using timeout as the per-call override
// (0 means use the client's default).
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (map[string]any, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcpclient: %s not connected", c.cfg.Name)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: call %s on %s: %w", name, c.cfg.Name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("mcpclient: %s on %s returned an error result", name, c.cfg.Name)
	}
	return decodeStructured(result), nil
}

func decodeStructured(result *mcp.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}
	if m, ok := result.StructuredContent.(map[string]any); ok {
		return m
	}
	return nil
}

// Close aborts pending calls with Canceled and shuts down the transport.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
