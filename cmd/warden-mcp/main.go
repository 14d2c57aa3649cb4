package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wardenlabs/feishu-warden/internal/mcp"
)

// This MCP server exposes the warden admin API as tools over stdio. It must
// run on the same host as the bot: the admin API listens on loopback only.

func main() {
	baseURL := os.Getenv("WARDEN_API_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:9877"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	server := mcp.NewServer(mcp.NewClient(baseURL))
	if err := server.Run(ctx); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
