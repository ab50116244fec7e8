package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/vellumhq/vellum/internal/config"
	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
)

var onboardHwd = &OnboardRunner{}

type OnboardRunner struct {
	scanner *bufio.Scanner
}

func (r *OnboardRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "onboard",
		Usage: "Interactive setup wizard for first-time configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "accept-risk",
				Usage: "Skip the disclaimer prompt",
			},
		},
		Action: r.run,
	}
}

var (
	cBanner  = color.New(color.FgCyan, color.Bold)
	cStep    = color.New(color.FgCyan, color.Bold)
	cWarn    = color.New(color.FgYellow)
	cSuccess = color.New(color.FgGreen)
	cError   = color.New(color.FgRed)
	cPrompt  = color.New(color.FgWhite, color.Bold)
	cDim     = color.New(color.FgHiBlack)
)

func (r *OnboardRunner) run(ctx context.Context, cmd *cli.Command) error {
	r.scanner = bufio.NewScanner(os.Stdin)

	cfgPath := consts.DefaultConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		cWarn.Printf("  Config already exists at %s\n", cfgPath)
		if !r.confirm("  Overwrite existing config?", false) {
			fmt.Println("  Aborted.")
			return nil
		}
		fmt.Println()
	}

	if !cmd.Bool("accept-risk") {
		if !r.stepWelcome() {
			return nil
		}
	}

	chanID, chCfg := r.stepChannel()
	userID, userKB := r.stepKB()
	storage := r.stepStorage()
	mcpBind := r.stepMCP()

	return r.stepConfirm(cfgPath, chanID, chCfg, userID, userKB, storage, mcpBind)
}

func (r *OnboardRunner) stepWelcome() bool {
	fmt.Println()
	cBanner.Println("  Vellum")
	cDim.Println("  A personal knowledge base that chats back")
	fmt.Println()

	cWarn.Println("  DISCLAIMER")
	fmt.Println()
	cWarn.Println("  Vellum runs an external coding-agent CLI against your knowledge")
	cWarn.Println("  base on your behalf, and pushes commits to the repository you")
	cWarn.Println("  configure. By continuing you acknowledge:")
	fmt.Println()
	cWarn.Println("  - the agent can create, edit, and push Markdown files unattended")
	cWarn.Println("  - credentials are stored locally, encrypted at rest")
	cWarn.Printf("    under %s\n", consts.VellumHomeDir())
	fmt.Println()

	if !r.confirm("  Do you accept these terms?", false) {
		fmt.Println()
		fmt.Println("  Aborted. You must accept the terms to continue.")
		return false
	}
	fmt.Println()
	return true
}

func (r *OnboardRunner) stepChannel() (string, config.ChannelConfig) {
	r.printStepHeader("Step 1", "Chat channel")

	cDim.Println("  Select channel type:")
	cDim.Println("    [1] telegram")
	cDim.Println("    [2] http (local request/response API)")
	fmt.Println()

	idx := r.promptChoice("  Channel type", 1, 2)
	fmt.Println()

	if idx == 1 {
		token := r.promptRequired("  Telegram bot token")
		fmt.Println()
		cfg := config.ChannelConfig{
			Type:    "telegram",
			Enabled: true,
			Config:  map[string]any{"token": token},
		}
		cSuccess.Println("  Channel: telegram-main (telegram)")
		fmt.Println()
		return "telegram-main", cfg
	}

	cfg := config.ChannelConfig{Type: "http", Enabled: true, Config: map[string]any{}}
	cSuccess.Println("  Channel: http-main (http)")
	fmt.Println()
	return "http-main", cfg
}

func (r *OnboardRunner) stepKB() (int64, core.UserKBConfig) {
	r.printStepHeader("Step 2", "Knowledge base")

	userIDStr := r.promptRequired("  Your user/chat ID on this channel")
	userID, err := strconv.ParseInt(strings.TrimSpace(userIDStr), 10, 64)
	if err != nil {
		cError.Println("  Invalid numeric ID, defaulting to 0.")
		userID = 0
	}
	fmt.Println()

	kbName := r.promptDefault("  Knowledge base name", "notes")
	fmt.Println()

	kbType := core.KBTypeLocal
	githubURL := ""
	if r.confirm("  Back this KB with a GitHub repo?", false) {
		kbType = core.KBTypeGithub
		githubURL = r.promptRequired("  GitHub repository URL")
	}
	fmt.Println()

	userKB := core.UserKBConfig{UserID: userID, KBName: kbName, KBType: kbType, GithubURL: githubURL}
	cSuccess.Printf("  KB: %s (%s)\n\n", kbName, kbType)
	return userID, userKB
}

func (r *OnboardRunner) stepStorage() config.StorageConfig {
	r.printStepHeader("Step 3", "Memory storage")

	cDim.Println("  Select memory backend:")
	cDim.Println("    [1] json (flat files, no extra services)")
	cDim.Println("    [2] vector (embeddings + similarity search)")
	cDim.Println("    [3] mem-agent (delegate recall to the coding agent)")
	fmt.Println()

	idx := r.promptChoice("  Backend", 1, 3)
	fmt.Println()

	backend := [...]string{"json", "vector", "mem-agent"}[idx-1]
	storage := config.StorageConfig{Type: backend, DataDir: filepath.Join(consts.VellumHomeDir(), "data")}
	cSuccess.Printf("  Storage: %s\n\n", backend)
	return storage
}

func (r *OnboardRunner) stepMCP() string {
	r.printStepHeader("Step 4", "MCP Hub")

	bind := r.promptDefault("  Hub bind address", "0.0.0.0:8765")
	fmt.Println()
	cSuccess.Printf("  MCP Hub: %s\n\n", bind)
	return bind
}

func (r *OnboardRunner) stepConfirm(
	cfgPath string,
	chanID string, chCfg config.ChannelConfig,
	userID int64, userKB core.UserKBConfig,
	storage config.StorageConfig,
	mcpBind string,
) error {
	r.printStepHeader("Step 5", "Review")

	homeDir := consts.VellumHomeDir()
	kbRoot := filepath.Join(homeDir, consts.KnowledgeBasesDirName)

	cDim.Printf("  Home directory:  %s\n", homeDir)
	cDim.Printf("  Config file:     %s\n", cfgPath)
	cDim.Printf("  KB root:         %s\n", kbRoot)
	fmt.Println()
	cDim.Printf("  Channel:  %s (%s)\n", chanID, chCfg.Type)
	cDim.Printf("  KB:       %s for user %d\n", userKB.KBName, userID)
	cDim.Printf("  Storage:  %s\n", storage.Type)
	cDim.Printf("  MCP Hub:  %s\n", mcpBind)
	fmt.Println()

	if !r.confirm("  Write config and initialize the knowledge base?", true) {
		fmt.Println("  Aborted.")
		return nil
	}
	fmt.Println()

	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			DataDir:       homeDir,
			KBRootDir:     kbRoot,
			ShutdownGrace: 10,
			DefaultMode:   "note",
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "both",
			File:   filepath.Join(homeDir, "logs", "vellum.log"),
		},
		Channels: map[string]config.ChannelConfig{chanID: chCfg},
		RateLimit: config.RateLimitConfig{
			MaxRequests:   20,
			WindowSeconds: 60,
			Backend:       "memory",
		},
		Aggregator: config.AggregatorConfig{GroupTimeoutSec: 10, TickMs: 500},
		MCP:        config.MCPConfig{HubBind: mcpBind},
		Storage:    storage,
		Reindex:    config.ReindexConfig{DebounceMs: 2000, SweepIntervalS: 300},
		Users:      map[string]core.UserKBConfig{strconv.FormatInt(userID, 10): userKB},
	}

	if err := writeConfigDirect(cfgPath, cfg); err != nil {
		cError.Printf("  Failed to write config: %v\n", err)
		return err
	}
	cSuccess.Printf("  Created %s\n", cfgPath)

	if err := os.MkdirAll(filepath.Join(kbRoot, userKB.KBName, consts.TopicsDirName), 0o755); err != nil {
		cError.Printf("  Failed to initialize KB: %v\n", err)
		return err
	}
	cSuccess.Printf("  Initialized KB at %s\n", filepath.Join(kbRoot, userKB.KBName))

	fmt.Println()
	cSuccess.Println("  All set! Run \"vellum gateway run\" to start.")
	fmt.Println()
	return nil
}

func writeConfigDirect(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		return err
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Apply("config", cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	return config.Save()
}

func (r *OnboardRunner) prompt(label string) string {
	cPrompt.Printf("%s > ", label)
	if r.scanner.Scan() {
		return strings.TrimSpace(r.scanner.Text())
	}
	return ""
}

func (r *OnboardRunner) promptDefault(label string, defaultVal string) string {
	if defaultVal != "" {
		cPrompt.Printf("%s ", label)
		cDim.Printf("[%s]", defaultVal)
		cPrompt.Print(" > ")
	} else {
		cPrompt.Printf("%s > ", label)
	}

	if r.scanner.Scan() {
		val := strings.TrimSpace(r.scanner.Text())
		if val != "" {
			return val
		}
	}
	return defaultVal
}

func (r *OnboardRunner) promptRequired(label string) string {
	for {
		val := r.prompt(label)
		if val != "" {
			return val
		}
		cError.Println("  This field is required.")
	}
}

func (r *OnboardRunner) promptChoice(label string, min, max int) int {
	for {
		val := r.promptDefault(label, strconv.Itoa(min))
		n, err := strconv.Atoi(val)
		if err == nil && n >= min && n <= max {
			return n
		}
		cError.Printf("  Please enter a number between %d and %d.\n", min, max)
	}
}

func (r *OnboardRunner) confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	cPrompt.Printf("%s %s > ", label, hint)
	if r.scanner.Scan() {
		val := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
		if val == "" {
			return defaultYes
		}
		return val == "y" || val == "yes"
	}
	return defaultYes
}

func (r *OnboardRunner) printStepHeader(step string, title string) {
	cStep.Printf("=== %s: %s ===\n\n", step, title)
}
