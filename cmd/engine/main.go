// Command engine runs the worker pool that dequeues node-execution
// jobs and drives them through the §4.1 dispatch loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/lyzr/flowengine/internal/bootstrap"
	"github.com/lyzr/flowengine/internal/engine"
	"github.com/lyzr/flowengine/internal/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap engine: %v\n", err)
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

	poolSize := components.Config.Engine.WorkerPoolSize
	workers := func(workerCtx context.Context) {
		var wg sync.WaitGroup
		for i := 0; i < poolSize; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				components.Logger.Info("worker started", "worker_id", id)
				if err := eng.Run(workerCtx); err != nil {
					components.Logger.Error("worker exited", "worker_id", id, "error", err)
				}
			}(i)
		}
		wg.Wait()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler())

	srv := server.New(components.Config.Service.Name, components.Config.Service.Port, mux, components.Logger, workers)

	components.Logger.Info("engine service ready",
		"port", components.Config.Service.Port,
		"workers", poolSize,
	)

	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
