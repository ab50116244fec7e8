// Package mcphub implements C15, the MCP Hub Server: it exposes this
// system's own memory/vector/reindex/server-management operations as MCP
// tools over SSE (and optionally stdio), and serves the small HTTP surface
// (health, client config generation) a gateway or operator tooling needs,
// grounded on the teacher's internal/gateway Hertz server setup.
package mcphub

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/mcpmanager"
	"github.com/vellumhq/vellum/internal/memstore"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/reindex"
)

// StoreResolver locates the memory backend for a given knowledge base.
type StoreResolver func(kbID string) (memstore.Store, error)

// Hub is the MCP Hub Server (§6 spec.md).
type Hub struct {
	bind   string
	name   string
	stores StoreResolver
	trigger reindex.Trigger
	servers *mcpmanager.Manager
	registry *registry

	mcpServer  *mcp.Server
	httpServer *hzServer.Hertz
	sseServer  *http.Server
}

// Config bundles what Hub needs to wire its tools to live collaborators.
type Config struct {
	Bind    string
	Name    string
	Version string

	Stores  StoreResolver
	Trigger reindex.Trigger
	Servers *mcpmanager.Manager
}

func New(cfg Config) *Hub {
	bind := cfg.Bind
	if bind == "" {
		bind = "0.0.0.0:8765"
	}
	name := cfg.Name
	if name == "" {
		name = "vellum-hub"
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	h := &Hub{
		bind:    bind,
		name:    name,
		stores:  cfg.Stores,
		trigger: cfg.Trigger,
		servers: cfg.Servers,
	}
	h.registry = newRegistry(h)
	h.mcpServer = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	h.registry.registerAll(h.mcpServer)
	return h
}

// Run starts both listeners and blocks until ctx is cancelled: a Hertz
// server for /health and /config/client/{type} (matching the teacher's
// gateway HTTP surface), and a plain net/http server for the MCP SSE
// endpoint, since the go-sdk's SSE handler is a standard http.Handler and
// Hertz has no in-pack adaptor for one. The SSE server listens on the
// next port after bind's.
func (h *Hub) Run(ctx context.Context) error {
	h.httpServer = hzServer.Default(hzServer.WithHostPorts(h.bind))

	h.httpServer.GET("/health", func(_ context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
	h.httpServer.GET("/config/client/:type", func(_ context.Context, c *app.RequestContext) {
		clientType := c.Param("type")
		cfg, err := h.clientConfig(clientType)
		if err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusOK, cfg)
	})

	ssePort, err := sseListenAddr(h.bind)
	if err != nil {
		return fmt.Errorf("mcphub: derive sse address: %w", err)
	}
	sseHandler := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return h.mcpServer })
	h.sseServer = &http.Server{Addr: ssePort, Handler: sseHandler}

	errCh := make(chan error, 1)
	go func() {
		if err := h.sseServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("mcphub: sse server: %w", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = h.httpServer.Shutdown(context.Background())
		_ = h.sseServer.Shutdown(context.Background())
	}()

	logs.Info("[mcphub] http on %s, sse on %s", h.bind, ssePort)
	h.httpServer.Spin()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// RunStdio serves the hub over stdio for a single local MCP client,
// blocking until the session ends or ctx is cancelled.
func (h *Hub) RunStdio(ctx context.Context, transport *mcp.IOTransport) error {
	session, err := h.mcpServer.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcphub: stdio connect: %w", err)
	}
	return session.Wait()
}

func sseListenAddr(bind string) (string, error) {
	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return "", err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, port+1), nil
}

func (h *Hub) clientConfig(clientType string) (core.ClientConfig, error) {
	entries := make(map[string]core.ClientConfigServerEntry)
	allowed := make([]string, 0)

	for _, status := range h.servers.ListServers() {
		allowed = append(allowed, status.Name)
	}

	switch clientType {
	case "standard", "":
		entries["vellum-hub"] = core.ClientConfigServerEntry{
			URL:         fmt.Sprintf("http://%s/sse", h.bind),
			Timeout:     int(30 * time.Second / time.Millisecond),
			Description: "Vellum MCP Hub",
		}
	case "lmstudio":
		entries["vellum-hub"] = core.ClientConfigServerEntry{
			URL:     fmt.Sprintf("http://%s/sse", h.bind),
			Timeout: int(30 * time.Second / time.Millisecond),
		}
	default:
		return core.ClientConfig{}, fmt.Errorf("mcphub: unknown client config type %q", clientType)
	}

	return core.ClientConfig{MCPServers: entries, AllowMCPServers: allowed}, nil
}
