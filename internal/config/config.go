package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
)

type (
	Config struct {
		Gateway   GatewayConfig            `yaml:"gateway"`
		Logging   LoggingConfig            `yaml:"logging"`
		Channels  map[string]ChannelConfig `yaml:"channels"`
		RateLimit RateLimitConfig          `yaml:"rate_limit"`
		Aggregator AggregatorConfig        `yaml:"aggregator"`
		MCP       MCPConfig                `yaml:"mcp"`
		Storage   StorageConfig            `yaml:"storage"`
		Reindex   ReindexConfig            `yaml:"reindex"`
		Users     map[string]core.UserKBConfig `yaml:"users"` // key: userId as decimal string
	}

	// GatewayConfig controls the overall runtime, mirroring the teacher's
	// gateway block but scoped to what this system's single-process
	// runtime actually needs.
	GatewayConfig struct {
		DataDir        string `yaml:"data_dir"`
		KBRootDir      string `yaml:"kb_root_dir"`
		ShutdownGrace  int    `yaml:"shutdown_grace_sec"`
		DefaultMode    string `yaml:"default_mode"` // note, ask, agent
		HTTPBind       string `yaml:"http_bind"`     // shared server for http-channel routes
		GitPush        bool   `yaml:"git_push"`      // C9 auto-commit-and-push after each note
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	ChannelConfig struct {
		ID       string                      `yaml:"-"`
		Type     string                      `yaml:"type"` // telegram, http
		Enabled  bool                        `yaml:"enabled"`
		ACL      map[string]ChannelACLConfig `yaml:"acl,omitempty"` // key: chatType:chatId
		Security ChannelSecurityConfig       `yaml:"security,omitempty"`
		Config   map[string]interface{}      `yaml:"config"`
	}

	ChannelACLConfig struct {
		Allow []string `yaml:"allow"`
		Block []string `yaml:"block"`
	}

	ChannelSecurityConfig struct {
		Policy        consts.SecurityPolicy `yaml:"policy"`
		WelcomeWindow int                   `yaml:"welcome_window"`
		MaxResp       int                   `yaml:"max_resp"`
		CustomText    string                `yaml:"custom_text"`
	}

	// RateLimitConfig backs C7.
	RateLimitConfig struct {
		MaxRequests   int    `yaml:"max_requests"`
		WindowSeconds int    `yaml:"window_seconds"`
		Backend       string `yaml:"backend"` // memory, redis
		RedisAddr     string `yaml:"redis_addr,omitempty"`
	}

	// AggregatorConfig backs C5.
	AggregatorConfig struct {
		GroupTimeoutSec int `yaml:"group_timeout_sec"`
		TickMs          int `yaml:"tick_ms"`
	}

	// MCPConfig backs C13/C14/C15.
	MCPConfig struct {
		HubURL          string                      `yaml:"hub_url,omitempty"` // env MCP_HUB_URL mirror; non-empty => client-only mode
		HubBind         string                      `yaml:"hub_bind"`          // e.g. :8765
		SkipConfigGen   bool                        `yaml:"skip_config_gen"`
		CallTimeoutMs   int                         `yaml:"call_timeout_ms"`
		HealthCheck     HealthCheckConfig           `yaml:"health_check"`
		Servers         map[string]core.MCPServerConfig `yaml:"servers"`
	}

	HealthCheckConfig struct {
		IntervalSec int `yaml:"interval_sec"`
		MaxFailures int `yaml:"max_failures"`
	}

	// StorageConfig backs C16.
	StorageConfig struct {
		Type       string           `yaml:"type"` // json, vector, mem-agent
		DataDir    string           `yaml:"data_dir"`
		Vector     VectorConfig     `yaml:"vector"`
	}

	VectorConfig struct {
		EmbeddingProvider string `yaml:"embedding_provider"` // sentence-transformers, infinity
		EmbeddingURL      string `yaml:"embedding_url,omitempty"`
		StoreBackend      string `yaml:"store_backend"` // faiss, qdrant
		QdrantURL         string `yaml:"qdrant_url,omitempty"`
	}

	// ReindexConfig backs C12.
	ReindexConfig struct {
		DebounceMs     int `yaml:"debounce_ms"`
		SweepIntervalS int `yaml:"sweep_interval_sec"`
	}
)

// UpdateByName .
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "rate_limit":
		typed, ok := value.(*RateLimitConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'rate_limit' requires *RateLimitConfig")
		}
		c.RateLimit = *typed
	case "aggregator":
		typed, ok := value.(*AggregatorConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'aggregator' requires *AggregatorConfig")
		}
		c.Aggregator = *typed
	case "mcp":
		typed, ok := value.(*MCPConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'mcp' requires *MCPConfig")
		}
		c.MCP = *typed
	case "storage":
		typed, ok := value.(*StorageConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'storage' requires *StorageConfig")
		}
		c.Storage = *typed
	case "reindex":
		typed, ok := value.(*ReindexConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'reindex' requires *ReindexConfig")
		}
		c.Reindex = *typed
	case "channels":
		typed, ok := value.(*map[string]ChannelConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]ChannelConfig")
		}
		next := make(map[string]ChannelConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	case "users":
		typed, ok := value.(*map[string]core.UserKBConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'users' requires *map[string]core.UserKBConfig")
		}
		next := make(map[string]core.UserKBConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Users = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

// Clone .
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

// Hash .
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
