package main

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/codedojo/internal/daemon"
	mcpserver "github.com/felixgeelhaar/codedojo/internal/mcp"
)

// cmdMCP serves the practice tools to an editor agent
func cmdMCP(args []string) error {
	var httpAddr string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--http":
			if i+1 >= len(args) {
				return fmt.Errorf("--http requires an address (e.g., 127.0.0.1:7434)")
			}
			httpAddr = args[i+1]
			i++
		default:
			return fmt.Errorf("unknown mcp flag: %s", args[i])
		}
	}

	return withServices(func(ctx context.Context, svc *daemon.Services) error {
		cfg := mcpserver.Config{
			UserID:   localUser(),
			Version:  Version,
			Executor: svc.Execution,
			Catalog:  svc.Problems,
			Board:    svc.Board,
		}
		if svc.Tutor != nil {
			cfg.Tutor = svc.Tutor
		}
		srv := mcpserver.NewServer(cfg)

		if httpAddr != "" {
			return srv.ServeHTTP(ctx, httpAddr)
		}
		return srv.ServeStdio(ctx)
	})
}
