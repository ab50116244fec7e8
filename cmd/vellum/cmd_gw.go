package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/vellumhq/vellum/internal/agentclient"
	"github.com/vellumhq/vellum/internal/askservice"
	"github.com/vellumhq/vellum/internal/channel"
	httpchannel "github.com/vellumhq/vellum/internal/channel/http"
	"github.com/vellumhq/vellum/internal/channel/telegram"
	"github.com/vellumhq/vellum/internal/config"
	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/eventbus"
	"github.com/vellumhq/vellum/internal/gitops"
	"github.com/vellumhq/vellum/internal/mcphub"
	"github.com/vellumhq/vellum/internal/mcpmanager"
	"github.com/vellumhq/vellum/internal/memstore"
	"github.com/vellumhq/vellum/internal/noteservice"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/ratelimit"
	"github.com/vellumhq/vellum/internal/reindex"
	"github.com/vellumhq/vellum/internal/router"
	"github.com/vellumhq/vellum/internal/secrets"
	"github.com/vellumhq/vellum/internal/security/pairing"
	"github.com/vellumhq/vellum/internal/taskservice"
	"github.com/vellumhq/vellum/internal/usercontext"
)

var gwHwd = &GatewayRunner{}

type GatewayRunner struct{}

func (r *GatewayRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Manage the gateway runtime",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the gateway runtime: router, mode services, MCP hub and configured channels",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the runtime config file",
						Value:   "config.yaml",
					},
				},
				Action: r.run,
			},
			// TODO restart
		},
	}
}

// credentialResolver adapts secrets.Store's GetToken to gitops.CredentialResolver.
type credentialResolver struct{ store *secrets.Store }

func (c credentialResolver) Resolve(userID int64, platform core.Platform) (string, string, error) {
	return c.store.GetToken(userID, platform)
}

func (r *GatewayRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	cfgPath = getConfigPath(cfgPath)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err = r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	logs.CtxInfo(ctx, "booting Vellum runtime, using config file: %s...", cfgPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	kbRoot := cfg.Gateway.KBRootDir
	if kbRoot == "" {
		kbRoot = filepath.Join(consts.VellumHomeDir(), consts.KnowledgeBasesDirName)
	}
	dataDir := cfg.Gateway.DataDir
	if dataDir == "" {
		dataDir = consts.VellumHomeDir()
	}

	// --- C1 Credentials Store, C3 Git Operations, C4 Event Bus ---
	secretsStore, err := secrets.NewStore(filepath.Join(dataDir, "secrets"))
	if err != nil {
		return fmt.Errorf("open credentials store: %w", err)
	}
	bus := eventbus.New(4)
	git := gitops.New(credentialResolver{secretsStore}, bus.Publish)

	// --- C7 Rate Limiter ---
	var rdb *redis.Client
	if cfg.RateLimit.Backend == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
	}
	limiter, err := ratelimit.New(cfg.RateLimit.Backend, ratelimit.Config{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		WindowSeconds: cfg.RateLimit.WindowSeconds,
	}, rdb)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}

	// --- Agent contract (C9/C10/C11 driver) ---
	agent := agentclient.New()

	// --- C14 MCP Server Manager: connects to any operator-configured
	// external MCP servers (web search, other tool servers); distinct from
	// the Hub server this process also runs.
	healthInterval := time.Duration(cfg.MCP.HealthCheck.IntervalSec) * time.Second
	mgr := mcpmanager.New(healthInterval, cfg.MCP.HealthCheck.MaxFailures)
	callTimeout := time.Duration(cfg.MCP.CallTimeoutMs) * time.Millisecond
	mgr.Start(ctx, cfg.MCP.Servers, callTimeout)

	// --- C16 Memory Storage factory, resolved lazily per kbId ---
	storeResolver := func(kbID string) (memstore.Store, error) {
		return memstore.New(cfg.Storage, kbID, agent)
	}
	kbPathResolver := func(kbID string) (string, bool) {
		if strings.TrimSpace(kbID) == "" {
			return "", false
		}
		return filepath.Join(kbRoot, kbID), true
	}

	// --- C12 Vector Search Manager + C15 MCP Hub Server ---
	sweepInterval := time.Duration(cfg.Reindex.SweepIntervalS) * time.Second
	trigger := mcphub.NewLocalTrigger(kbPathResolver, storeResolver)
	reindexMgr := reindex.New(trigger, bus, sweepInterval)
	reindexMgr.Start(func() []string { return knownKBs(cfg) })

	hubBind := cfg.MCP.HubBind
	if hubBind == "" {
		hubBind = "0.0.0.0:8765"
	}
	hub := mcphub.New(mcphub.Config{
		Bind:    hubBind,
		Name:    "vellum-hub",
		Stores:  storeResolver,
		Trigger: trigger,
		Servers: mgr,
	})
	go func() {
		if err := hub.Run(ctx); err != nil {
			logs.Error("mcp hub stopped: %v", err)
		}
	}()

	// --- Channels: one router + mode-service set per enabled channel ---
	var httpRoutes []channel.Route
	var channels []channel.Channel
	for id, chCfg := range cfg.Channels {
		if !chCfg.Enabled {
			continue
		}
		chCfgCopy := chCfg
		chCfgCopy.ID = id

		ch, err := newChannel(id, chCfgCopy)
		if err != nil {
			return fmt.Errorf("create channel %s: %w", id, err)
		}
		if err := channel.Register(ch); err != nil {
			return fmt.Errorf("register channel %s: %w", id, err)
		}
		if rp, ok := ch.(channel.RouteProvider); ok {
			httpRoutes = append(httpRoutes, rp.Routes()...)
		}

		bridge := channel.NewBridge(ch)

		// users.dispatch and rt reference each other: usercontext.Manager
		// needs its dispatch callback at construction, but the callback is
		// the Router's method, and the Router needs the Manager.
		var rt *router.Router
		users := usercontext.NewManager(
			time.Duration(cfg.Aggregator.GroupTimeoutSec)*time.Second,
			time.Duration(cfg.Aggregator.TickMs)*time.Millisecond,
			func(userID int64, group *core.MessageGroup) { rt.Dispatch(userID, group) },
		)
		services := map[core.Mode]router.Service{
			core.ModeNote:  noteservice.New(agent, limiter, bridge, kbRoot, git, cfg.Gateway.GitPush),
			core.ModeAsk:   askservice.New(agent, limiter, bridge, kbRoot),
			core.ModeAgent: taskservice.New(agent, limiter, bridge, kbRoot),
		}
		rt = router.New(allowUser(), resolveUserKB(), users, bridge, kbRoot, services)

		channelType := string(ch.Type())
		if err := ch.RegisterMessageHandler(pairingInboundHandler(channelType, id, ch, bridge, rt)); err != nil {
			return fmt.Errorf("register handler for channel %s: %w", id, err)
		}
		channels = append(channels, ch)
	}

	// --- shared HTTP server for any http-channel routes ---
	if len(httpRoutes) > 0 {
		bind := cfg.Gateway.HTTPBind
		if bind == "" {
			bind = "0.0.0.0:8080"
		}
		sharedSrv := hzServer.Default(hzServer.WithHostPorts(bind))
		for _, rt := range httpRoutes {
			sharedSrv.Handle(rt.Method, rt.Path, rt.Handler)
		}
		go sharedSrv.Spin()
	}

	for _, ch := range channels {
		ch := ch
		go func() {
			if err := ch.Start(ctx); err != nil {
				logs.Error("channel %s stopped: %v", ch.ID(), err)
			}
		}()
	}

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	shutdownCtx := context.Background()
	for _, ch := range channels {
		if err := ch.Stop(shutdownCtx); err != nil {
			logs.CtxError(ctx, "stop channel %s error: %v", ch.ID(), err)
		}
		channel.Unregister(ch.ID())
	}
	reindexMgr.Stop()
	mgr.Stop()

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func newChannel(id string, chCfg config.ChannelConfig) (channel.Channel, error) {
	switch channel.Type(strings.ToLower(strings.TrimSpace(chCfg.Type))) {
	case channel.Telegram:
		return telegram.NewChannel(id, &chCfg)
	case channel.HTTP:
		return httpchannel.NewChannel(id, &chCfg)
	default:
		return nil, fmt.Errorf("unsupported channel type %q", chCfg.Type)
	}
}

// allowUser consults the live config on every call, so a change to the
// configured users applied mid-run takes effect immediately. It checks
// config.Users only; the channel pairing ACL is enforced by
// pairingInboundHandler.
func allowUser() router.AllowListFunc {
	return func(userID int64) bool {
		c, err := config.Get()
		if err != nil {
			return false
		}
		_, ok := c.Users[strconv.FormatInt(userID, 10)]
		return ok
	}
}

func resolveUserKB() router.KBResolver {
	return func(userID int64) (core.UserKBConfig, bool) {
		c, err := config.Get()
		if err != nil {
			return core.UserKBConfig{}, false
		}
		uk, ok := c.Users[strconv.FormatInt(userID, 10)]
		return uk, ok
	}
}

func knownKBs(fallback *config.Config) []string {
	c, err := config.Get()
	if err != nil {
		c = fallback
	}
	seen := make(map[string]struct{}, len(c.Users))
	out := make([]string, 0, len(c.Users))
	for _, uk := range c.Users {
		if uk.KBName == "" {
			continue
		}
		if _, ok := seen[uk.KBName]; ok {
			continue
		}
		seen[uk.KBName] = struct{}{}
		out = append(out, uk.KBName)
	}
	return out
}

// pairingInboundHandler gates every inbound message behind the channel's
// pairing/ACL policy before it reaches the router's aggregator. A sender the
// ACL allows goes on to the router; a sender with a valid pairing code is
// granted and asked to resend; any other sender is answered per the
// channel's security policy (welcome or custom text asking for a pairing
// code), or gets no reply under the silent policy or once the reply limit
// for the welcome window is reached.
func pairingInboundHandler(channelType, channelID string, ch channel.Channel, bridge *channel.Bridge, rt *router.Router) func(context.Context, *channel.Message) error {
	channelKey := pairing.GetKey(channelType, channelID)

	return func(ctx context.Context, msg *channel.Message) error {
		mgr := pairing.Get(channelKey)
		aclKey := "user:" + msg.ChatID

		allowed, err := mgr.IsAllowed(aclKey, msg.UserID)
		if err != nil {
			// IsAllowed fails only when the pairing state cannot be read
			// (no loaded config, the channel missing from it, or an empty
			// chat or user ID): let the message through to the router,
			// whose own allow-list still applies, rather than locking a
			// personal deployment out of its own bot.
			return rt.HandleIncoming(ctx, bridge.ToIncoming(msg))
		}
		if allowed {
			return rt.HandleIncoming(ctx, bridge.ToIncoming(msg))
		}

		code := strings.TrimSpace(msg.Content)
		if code != "" {
			if _, err := mgr.VerifyCode(msg.UserID, code); err == nil {
				if _, err := mgr.GrantACL(aclKey, msg.UserID); err != nil {
					logs.Error("[gateway] grant acl for %s/%s: %v", channelID, msg.UserID, err)
				}
				_, sendErr := ch.SendMessage(ctx, msg.ChatID, "You're paired. Send your message again.")
				return sendErr
			}
		}

		decision, err := mgr.EvaluateUnknownUser(msg.UserID, "")
		if err != nil {
			return fmt.Errorf("pairing: evaluate unknown user: %w", err)
		}
		if decision.Respond {
			_, sendErr := ch.SendMessage(ctx, msg.ChatID, decision.Message)
			return sendErr
		}
		return nil
	}
}

func (r *GatewayRunner) initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

func getConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}

	defaultPaths := []string{
		"config.yaml",
		consts.DefaultConfigPath(),
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultPaths[0]
}
