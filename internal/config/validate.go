package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
)

const (
	defaultPairingWelcomeWindowSec = 300
	defaultPairingMaxResp          = 3

	defaultRateLimitMax           = 20
	defaultRateLimitWindowSeconds = 60
	defaultGroupTimeoutSec        = 30
	defaultTickMs                 = 1000
	defaultMCPCallTimeoutMs       = 10_000
	defaultHealthCheckIntervalSec = 5
	defaultHealthCheckMaxFailures = 5
	defaultReindexDebounceMs      = 2000
	defaultReindexSweepSec        = 300
)

// Validate normalizes and checks the config loaded from disk, filling in
// defaults the way the teacher's Cronjob block does.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if strings.TrimSpace(c.Gateway.DataDir) == "" {
		c.Gateway.DataDir = "data"
	}
	if strings.TrimSpace(c.Gateway.KBRootDir) == "" {
		c.Gateway.KBRootDir = consts.KnowledgeBasesDirName
	}
	if c.Gateway.ShutdownGrace <= 0 {
		c.Gateway.ShutdownGrace = 10
	}
	if strings.TrimSpace(c.Gateway.DefaultMode) == "" {
		c.Gateway.DefaultMode = "note"
	}

	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = defaultRateLimitMax
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = defaultRateLimitWindowSeconds
	}
	if strings.TrimSpace(c.RateLimit.Backend) == "" {
		c.RateLimit.Backend = "memory"
	}

	if c.Aggregator.GroupTimeoutSec <= 0 {
		c.Aggregator.GroupTimeoutSec = defaultGroupTimeoutSec
	}
	if c.Aggregator.TickMs <= 0 {
		c.Aggregator.TickMs = defaultTickMs
	}

	if c.MCP.CallTimeoutMs <= 0 {
		c.MCP.CallTimeoutMs = defaultMCPCallTimeoutMs
	}
	if strings.TrimSpace(c.MCP.HubBind) == "" {
		c.MCP.HubBind = ":8765"
	}
	if c.MCP.HealthCheck.IntervalSec <= 0 {
		c.MCP.HealthCheck.IntervalSec = defaultHealthCheckIntervalSec
	}
	if c.MCP.HealthCheck.MaxFailures <= 0 {
		c.MCP.HealthCheck.MaxFailures = defaultHealthCheckMaxFailures
	}
	normalizedServers := make(map[string]core.MCPServerConfig, len(c.MCP.Servers))
	for key, one := range c.MCP.Servers {
		name := strings.TrimSpace(key)
		if name == "" {
			return errors.New("mcp server name cannot be empty")
		}
		one.Name = name
		if !one.IsSSE() && strings.TrimSpace(one.Command) == "" {
			return fmt.Errorf("mcp.servers[%s]: either url or command is required", name)
		}
		normalizedServers[name] = one
	}
	c.MCP.Servers = normalizedServers

	switch strings.ToLower(strings.TrimSpace(c.Storage.Type)) {
	case "", "json":
		c.Storage.Type = "json"
	case "vector":
		c.Storage.Type = "vector"
	case "mem-agent":
		c.Storage.Type = "mem-agent"
	default:
		return fmt.Errorf("invalid storage.type: %s", c.Storage.Type)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = c.Gateway.DataDir
	}

	if c.Reindex.DebounceMs <= 0 {
		c.Reindex.DebounceMs = defaultReindexDebounceMs
	}
	if c.Reindex.SweepIntervalS <= 0 {
		c.Reindex.SweepIntervalS = defaultReindexSweepSec
	}

	normalizedChannels := make(map[string]ChannelConfig, len(c.Channels))
	for key, one := range c.Channels {
		channelID := strings.TrimSpace(key)
		if channelID == "" {
			return errors.New("channel id cannot be empty")
		}
		one.ID = channelID

		if err := one.Validate(); err != nil {
			return fmt.Errorf("channels[%s] validation failed: %w", channelID, err)
		}
		normalizedChannels[channelID] = one
	}
	c.Channels = normalizedChannels

	normalizedUsers := make(map[string]core.UserKBConfig, len(c.Users))
	for key, one := range c.Users {
		userKey := strings.TrimSpace(key)
		if userKey == "" {
			return errors.New("user key cannot be empty")
		}
		if _, err := strconv.ParseInt(userKey, 10, 64); err != nil {
			return fmt.Errorf("users key must be a decimal userId, got %s", userKey)
		}
		normalizedUsers[userKey] = one
	}
	c.Users = normalizedUsers

	return nil
}

func (c *ChannelConfig) Validate() error {
	if c == nil {
		return errors.New("channel config cannot be nil")
	}

	securityEmpty := c.Security.Policy == "" &&
		c.Security.WelcomeWindow == 0 &&
		c.Security.MaxResp == 0 &&
		strings.TrimSpace(c.Security.CustomText) == ""
	if securityEmpty && len(c.ACL) == 0 {
		return nil
	}

	if c.Security.Policy == "" {
		c.Security.Policy = consts.SecurityPolicyWelcome
	}
	if c.Security.WelcomeWindow <= 0 {
		c.Security.WelcomeWindow = defaultPairingWelcomeWindowSec
	}
	if c.Security.MaxResp <= 0 {
		c.Security.MaxResp = defaultPairingMaxResp
	}
	c.Security.CustomText = strings.TrimSpace(c.Security.CustomText)

	switch c.Security.Policy {
	case consts.SecurityPolicyWelcome, consts.SecurityPolicySilent, consts.SecurityPolicyCustom:
	default:
		return fmt.Errorf("invalid security.policy: %s", c.Security.Policy)
	}

	if c.Security.Policy == consts.SecurityPolicyCustom && c.Security.CustomText == "" {
		return errors.New("security.custom_text is required when security.policy=custom")
	}

	if len(c.ACL) == 0 {
		return nil
	}

	normalized := make(map[string]ChannelACLConfig, len(c.ACL))
	for key, one := range c.ACL {
		chatID := strings.TrimSpace(key)
		if chatID == "" {
			return errors.New("acl key cannot be empty")
		}
		if !strings.HasPrefix(chatID, "group:") && !strings.HasPrefix(chatID, "user:") {
			return fmt.Errorf("acl key must start with group: or user:, got %s", chatID)
		}

		one.Allow = normalizeList(one.Allow)
		one.Block = normalizeList(one.Block)
		normalized[chatID] = one
	}
	c.ACL = normalized
	return nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, one := range in {
		one = strings.TrimSpace(one)
		if one == "" {
			continue
		}
		if _, ok := uniq[one]; ok {
			continue
		}
		uniq[one] = struct{}{}
		out = append(out, one)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
