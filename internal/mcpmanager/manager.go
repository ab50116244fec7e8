// Package mcpmanager implements C14: connects every configured MCP server,
// tracks connection health, and reconnects with exponential backoff,
// grounded on goclaw's mcp.Manager healthLoop/tryReconnect shape.
package mcpmanager

import (
	"context"
	"sync"
	"time"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/mcpclient"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

type serverState struct {
	name      string
	cfg       core.MCPServerConfig
	client    *mcpclient.Client
	callTimeout time.Duration

	mu              sync.Mutex
	connected       bool
	consecutiveFail int
	lastErr         string
	cancel          context.CancelFunc
}

// Manager owns a named MCP client per configured server and keeps them
// healthy (§4.14 spec.md).
type Manager struct {
	healthInterval time.Duration
	maxFailures    int

	mu      sync.RWMutex
	servers map[string]*serverState
}

func New(healthInterval time.Duration, maxFailures int) *Manager {
	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Manager{
		healthInterval: healthInterval,
		maxFailures:    maxFailures,
		servers:        make(map[string]*serverState),
	}
}

// Start connects every enabled server, logging (not failing) on a single
// server's connect error so one bad server doesn't block the others.
func (m *Manager) Start(ctx context.Context, configs map[string]core.MCPServerConfig, defaultCallTimeout time.Duration) {
	for name, cfg := range configs {
		if cfg.Disabled || !cfg.Enabled {
			continue
		}
		m.connectServer(ctx, name, cfg, defaultCallTimeout)
	}
}

func (m *Manager) connectServer(ctx context.Context, name string, cfg core.MCPServerConfig, callTimeout time.Duration) {
	client := mcpclient.New(cfg, callTimeout)
	if err := client.Connect(ctx); err != nil {
		logs.Error("[mcpmanager] connect %s failed: %v", name, err)
		return
	}

	hctx, cancel := context.WithCancel(context.Background())
	ss := &serverState{name: name, cfg: cfg, client: client, callTimeout: callTimeout, connected: true, cancel: cancel}

	m.mu.Lock()
	m.servers[name] = ss
	m.mu.Unlock()

	go m.healthLoop(hctx, ss)
	logs.Info("[mcpmanager] connected %s", name)
}

// Client returns the live client for a connected server.
func (m *Manager) Client(name string) (*mcpclient.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss, ok := m.servers[name]
	if !ok {
		return nil, false
	}
	ss.mu.Lock()
	connected := ss.connected
	ss.mu.Unlock()
	if !connected {
		return nil, false
	}
	return ss.client, true
}

// ListServers reports each server's live status, for the hub's status tool.
type ServerStatus struct {
	Name      string
	Connected bool
	LastError string
}

func (m *Manager) ListServers() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		out = append(out, ServerStatus{Name: ss.name, Connected: ss.connected, LastError: ss.lastErr})
		ss.mu.Unlock()
	}
	return out
}

func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ss.client.ListTools(ctx); err != nil {
				ss.mu.Lock()
				ss.connected = false
				ss.lastErr = err.Error()
				ss.mu.Unlock()
				logs.Error("[mcpmanager] health check failed for %s: %v", ss.name, err)
				m.tryReconnect(ctx, ss)
				continue
			}
			ss.mu.Lock()
			ss.connected = true
			ss.consecutiveFail = 0
			ss.lastErr = ""
			ss.mu.Unlock()
		}
	}
}

func (m *Manager) tryReconnect(ctx context.Context, ss *serverState) {
	ss.mu.Lock()
	ss.consecutiveFail++
	fail := ss.consecutiveFail
	ss.mu.Unlock()

	if fail > m.maxFailures {
		logs.Error("[mcpmanager] %s exceeded max reconnect failures (%d), giving up", ss.name, m.maxFailures)
		return
	}

	backoff := time.Duration(5<<uint(fail-1)) * time.Second
	if backoff > 300*time.Second {
		backoff = 300 * time.Second
	}
	time.Sleep(backoff)

	_ = ss.client.Close()
	newClient := mcpclient.New(ss.cfg, ss.callTimeout)
	if err := newClient.Connect(ctx); err != nil {
		logs.Error("[mcpmanager] reconnect %s attempt %d failed: %v", ss.name, fail, err)
		return
	}

	ss.mu.Lock()
	ss.client = newClient
	ss.connected = true
	ss.consecutiveFail = 0
	ss.lastErr = ""
	ss.mu.Unlock()
	logs.Info("[mcpmanager] reconnected %s", ss.name)
}

// Disconnect stops one server's health loop and closes its client without
// touching the others, for the hub's disable_mcp_server tool.
func (m *Manager) Disconnect(name string) bool {
	m.mu.Lock()
	ss, ok := m.servers[name]
	if ok {
		delete(m.servers, name)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if ss.cancel != nil {
		ss.cancel()
	}
	if err := ss.client.Close(); err != nil {
		logs.Error("[mcpmanager] close %s: %v", name, err)
	}
	return true
}

// Reconnect re-establishes a previously disconnected or newly registered
// server, for the hub's enable_mcp_server/register_mcp_server tools.
func (m *Manager) Reconnect(ctx context.Context, name string, cfg core.MCPServerConfig, callTimeout time.Duration) {
	m.connectServer(ctx, name, cfg, callTimeout)
}

// Stop cancels every server's health loop and closes its client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if err := ss.client.Close(); err != nil {
			logs.Error("[mcpmanager] close %s: %v", name, err)
		}
	}
	m.servers = make(map[string]*serverState)
}
