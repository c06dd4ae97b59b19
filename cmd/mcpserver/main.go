package main

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"bountypool-backend/config"
	"bountypool-backend/container"
	"bountypool-backend/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	c, err := container.NewContainer(context.Background(), cfg, nil)
	if err != nil {
		log.Fatalf("failed to init service: %v", err)
	}
	defer c.Close()

	mcpServer := mcp.NewMCPServer(c.Service)

	log.Printf("Bountypool MCP server starting (driver=%s)", cfg.StoreDriver)

	// Start the MCP server using stdio transport
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
