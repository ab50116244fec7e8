package mcphub

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vellumhq/vellum/internal/core"
)

// registry holds the tool input/output wiring separate from transport
// setup, grounded on the generic-typed mcp.AddTool pattern the go-sdk
// documents: each tool's request/response shape is a plain Go struct and
// AddTool derives the JSON schema from it via reflection.
type registry struct {
	hub     *Hub
	configs map[string]core.MCPServerConfig
}

func newRegistry(h *Hub) *registry {
	return &registry{hub: h, configs: make(map[string]core.MCPServerConfig)}
}

func (r *registry) registerAll(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{Name: "store_memory", Description: "Store a memory entry for a user in a knowledge base"}, r.storeMemory)
	mcp.AddTool(s, &mcp.Tool{Name: "retrieve_memory", Description: "Retrieve memory entries matching a query"}, r.retrieveMemory)
	mcp.AddTool(s, &mcp.Tool{Name: "list_categories", Description: "List memory categories and counts for a user"}, r.listCategories)
	mcp.AddTool(s, &mcp.Tool{Name: "vector_search", Description: "Semantic search over a knowledge base's indexed notes"}, r.vectorSearch)
	mcp.AddTool(s, &mcp.Tool{Name: "reindex_vector", Description: "Trigger a manual vector reindex for a knowledge base"}, r.reindexVector)
	mcp.AddTool(s, &mcp.Tool{Name: "get_reindex_status", Description: "Get the status of the most recent reindex job"}, r.getReindexStatus)
	mcp.AddTool(s, &mcp.Tool{Name: "list_mcp_servers", Description: "List configured MCP servers and their connection status"}, r.listMCPServers)
	mcp.AddTool(s, &mcp.Tool{Name: "get_mcp_server", Description: "Get a single configured MCP server's status"}, r.getMCPServer)
	mcp.AddTool(s, &mcp.Tool{Name: "register_mcp_server", Description: "Register a new MCP server"}, r.registerMCPServer)
	mcp.AddTool(s, &mcp.Tool{Name: "enable_mcp_server", Description: "Enable a configured MCP server"}, r.enableMCPServer)
	mcp.AddTool(s, &mcp.Tool{Name: "disable_mcp_server", Description: "Disable a configured MCP server"}, r.disableMCPServer)
}

type storeMemoryArgs struct {
	KBID     string         `json:"kbId"`
	UserID   int64          `json:"userId"`
	Content  string         `json:"content"`
	Category string         `json:"category,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type storeMemoryResult struct {
	ID string `json:"id"`
}

func (r *registry) storeMemory(ctx context.Context, _ *mcp.CallToolRequest, args storeMemoryArgs) (*mcp.CallToolResult, storeMemoryResult, error) {
	store, err := r.hub.stores(args.KBID)
	if err != nil {
		return nil, storeMemoryResult{}, err
	}
	id, err := store.StoreMemory(ctx, args.UserID, args.Content, args.Category, args.Tags, args.Metadata)
	if err != nil {
		return nil, storeMemoryResult{}, err
	}
	return nil, storeMemoryResult{ID: id}, nil
}

type retrieveMemoryArgs struct {
	KBID     string   `json:"kbId"`
	UserID   int64    `json:"userId"`
	Query    string   `json:"query,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type retrieveMemoryResult struct {
	Records []core.MemoryRecord `json:"records"`
}

func (r *registry) retrieveMemory(ctx context.Context, _ *mcp.CallToolRequest, args retrieveMemoryArgs) (*mcp.CallToolResult, retrieveMemoryResult, error) {
	store, err := r.hub.stores(args.KBID)
	if err != nil {
		return nil, retrieveMemoryResult{}, err
	}
	records, err := store.RetrieveMemory(ctx, args.UserID, args.Query, args.Category, args.Tags, args.Limit)
	if err != nil {
		return nil, retrieveMemoryResult{}, err
	}
	return nil, retrieveMemoryResult{Records: records}, nil
}

type listCategoriesArgs struct {
	KBID   string `json:"kbId"`
	UserID int64  `json:"userId"`
}

type listCategoriesResult struct {
	Categories []core.CategoryCount `json:"categories"`
}

func (r *registry) listCategories(ctx context.Context, _ *mcp.CallToolRequest, args listCategoriesArgs) (*mcp.CallToolResult, listCategoriesResult, error) {
	store, err := r.hub.stores(args.KBID)
	if err != nil {
		return nil, listCategoriesResult{}, err
	}
	categories, err := store.ListCategories(ctx, args.UserID)
	if err != nil {
		return nil, listCategoriesResult{}, err
	}
	return nil, listCategoriesResult{Categories: categories}, nil
}

type vectorSearchArgs struct {
	KBID  string `json:"kbId"`
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
}

type vectorSearchResult struct {
	Hits []core.SearchHit `json:"hits"`
}

func (r *registry) vectorSearch(ctx context.Context, _ *mcp.CallToolRequest, args vectorSearchArgs) (*mcp.CallToolResult, vectorSearchResult, error) {
	// kbId already encodes the requesting user (kb:{userID}:{kbName}), so
	// no separate userId filter is threaded through here (Open Question
	// resolution 3).
	store, err := r.hub.stores(args.KBID)
	if err != nil {
		return nil, vectorSearchResult{}, err
	}

	limit := args.TopK
	if limit <= 0 {
		limit = 10
	}
	records, err := store.RetrieveMemory(ctx, 0, args.Query, "", nil, limit)
	if err != nil {
		return nil, vectorSearchResult{}, err
	}

	hits := make([]core.SearchHit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, core.SearchHit{Path: rec.ID, Snippet: rec.Content})
	}
	return nil, vectorSearchResult{Hits: hits}, nil
}

type reindexVectorArgs struct {
	KBID  string `json:"kbId"`
	Force bool   `json:"force,omitempty"`
}

type reindexVectorResult struct {
	Job core.ReindexJob `json:"job"`
}

func (r *registry) reindexVector(ctx context.Context, _ *mcp.CallToolRequest, args reindexVectorArgs) (*mcp.CallToolResult, reindexVectorResult, error) {
	current, err := r.hub.trigger.GetReindexStatus(ctx, args.KBID)
	if err == nil && !current.IsTerminal() && !args.Force {
		return nil, reindexVectorResult{}, fmt.Errorf("AlreadyRunning: reindex already in progress for %s", args.KBID)
	}

	job, err := r.hub.trigger.ReindexVector(ctx, args.KBID, args.Force)
	if err != nil {
		return nil, reindexVectorResult{}, err
	}
	return nil, reindexVectorResult{Job: job}, nil
}

type getReindexStatusArgs struct {
	KBID string `json:"kbId"`
}

type getReindexStatusResult struct {
	Job core.ReindexJob `json:"job"`
}

func (r *registry) getReindexStatus(ctx context.Context, _ *mcp.CallToolRequest, args getReindexStatusArgs) (*mcp.CallToolResult, getReindexStatusResult, error) {
	job, err := r.hub.trigger.GetReindexStatus(ctx, args.KBID)
	if err != nil {
		return nil, getReindexStatusResult{}, err
	}
	return nil, getReindexStatusResult{Job: job}, nil
}

type listMCPServersResult struct {
	Servers []mcpServerStatus `json:"servers"`
}

type mcpServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}

func (r *registry) listMCPServers(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, listMCPServersResult, error) {
	statuses := r.hub.servers.ListServers()
	out := make([]mcpServerStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, mcpServerStatus{Name: st.Name, Connected: st.Connected, LastError: st.LastError})
	}
	return nil, listMCPServersResult{Servers: out}, nil
}

type getMCPServerArgs struct {
	Name string `json:"name"`
}

func (r *registry) getMCPServer(_ context.Context, _ *mcp.CallToolRequest, args getMCPServerArgs) (*mcp.CallToolResult, mcpServerStatus, error) {
	for _, st := range r.hub.servers.ListServers() {
		if st.Name == args.Name {
			return nil, mcpServerStatus{Name: st.Name, Connected: st.Connected, LastError: st.LastError}, nil
		}
	}
	return nil, mcpServerStatus{}, fmt.Errorf("mcphub: unknown server %q", args.Name)
}

type registerMCPServerArgs struct {
	Config core.MCPServerConfig `json:"config"`
}

func (r *registry) registerMCPServer(ctx context.Context, _ *mcp.CallToolRequest, args registerMCPServerArgs) (*mcp.CallToolResult, mcpServerStatus, error) {
	r.configs[args.Config.Name] = args.Config
	r.hub.servers.Reconnect(ctx, args.Config.Name, args.Config, 0)
	return r.getMCPServer(ctx, nil, getMCPServerArgs{Name: args.Config.Name})
}

type toggleMCPServerArgs struct {
	Name string `json:"name"`
}

func (r *registry) enableMCPServer(ctx context.Context, _ *mcp.CallToolRequest, args toggleMCPServerArgs) (*mcp.CallToolResult, mcpServerStatus, error) {
	cfg, ok := r.configs[args.Name]
	if !ok {
		return nil, mcpServerStatus{}, fmt.Errorf("mcphub: unknown server %q", args.Name)
	}
	r.hub.servers.Reconnect(ctx, args.Name, cfg, 0)
	return r.getMCPServer(ctx, nil, getMCPServerArgs{Name: args.Name})
}

func (r *registry) disableMCPServer(_ context.Context, _ *mcp.CallToolRequest, args toggleMCPServerArgs) (*mcp.CallToolResult, mcpServerStatus, error) {
	r.hub.servers.Disconnect(args.Name)
	return nil, mcpServerStatus{Name: args.Name, Connected: false}, nil
}
