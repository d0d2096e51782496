// Package main provides the lightweight entry point for the perioperative
// risk MCP server. It needs no external databases: calculations live in
// SQLite under the data directory and trend summaries in memory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/periop-risk-mcp-server/internal/config"
	"github.com/periop-risk-mcp-server/internal/mcp"
	"github.com/periop-risk-mcp-server/internal/setup"
)

func main() {
	log.SetOutput(os.Stderr)

	// Check for setup subcommand
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cmd := setup.NewCommand()
		cmd.SetArgs(os.Args[2:])
		if err := cmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg := config.LoadLiteConfig()

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}
}
