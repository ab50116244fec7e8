package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/vellumhq/vellum/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "vellum",
		Usage: "A personal knowledge base that chats back",
		Commands: []*cli.Command{
			gwHwd.cmd(),
			msgHwd.cmd(),
			onboardHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
