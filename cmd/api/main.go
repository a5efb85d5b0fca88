// Command api serves the HTTP/WebSocket surface of §6: run execution,
// approval resume, replay, run/ledger reads, and the event broadcaster.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lyzr/flowengine/internal/api"
	"github.com/lyzr/flowengine/internal/bootstrap"
	"github.com/lyzr/flowengine/internal/broadcaster"
	"github.com/lyzr/flowengine/internal/engine"
	"github.com/lyzr/flowengine/internal/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap api: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	registry := components.BuildRegistry()

	eng := &engine.Engine{
		Queue:       components.Queue,
		Registry:    registry,
		Workflows:   components.Workflows,
		Runs:        components.Runs,
		Ledger:      components.Ledger,
		Approvals:   components.Approvals,
		Bus:         components.Bus,
		Log:         components.Logger,
		NodeTimeout: components.Config.Engine.NodeTimeout,
	}

	auth := &api.TokenAuthenticator{
		Workflows: components.Workflows,
		Tokens:    loadTokens(),
	}

	broadcastServer := broadcaster.NewServer(components.Bus, auth, components.Logger)

	handler := &api.Handler{
		Engine:      eng,
		Runs:        components.Runs,
		Ledger:      components.Ledger,
		Approvals:   components.Approvals,
		Broadcaster: broadcastServer,
		Auth:        auth,
		Log:         components.Logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "api"})
	})
	handler.Register(e)

	srv := server.New(components.Config.Service.Name, components.Config.Service.Port, e, components.Logger, nil)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadTokens reads the AUTH_TOKENS env var as comma-separated
// token=subject pairs. Real token issuance lives outside this engine.
func loadTokens() map[string]string {
	tokens := make(map[string]string)
	raw := os.Getenv("AUTH_TOKENS")
	if raw == "" {
		return tokens
	}
	for _, pair := range strings.Split(raw, ",") {
		token, subject, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		tokens[token] = subject
	}
	return tokens
}
