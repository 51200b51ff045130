package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/stitch/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/stitch/internal/logger"
)

var serveCmd = withServices(&cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the submission worker",
	Long: `Starts the HTTP API (chunk uploads, transcriber callbacks, finalize and
read endpoints) together with the worker that submits queued chunks to the
remote transcriber. Runs until interrupted.`,
	RunE: runServe,
})

var workerCmd = withServices(&cobra.Command{
	Use:   "worker",
	Short: "Run only the submission worker",
	Long: `Consumes queued chunk jobs and submits them to the remote transcriber.
Use with a shared queue driver (pulse) to scale submission separately from
the HTTP API.`,
	RunE: runWorker,
})

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().Bool("no-worker", false, "do not start the submission worker")
	serveCmd.Flags().Bool("mcp", false, "mount the read-only MCP endpoint at /mcp")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}
	if addr == "" {
		addr = services.Config.Server.Addr
	}
	noWorker, err := cmd.Flags().GetBool("no-worker")
	if err != nil {
		return fmt.Errorf("getting no-worker flag: %w", err)
	}
	withMCP, err := cmd.Flags().GetBool("mcp")
	if err != nil {
		return fmt.Errorf("getting mcp flag: %w", err)
	}

	deps := httpapi.Deps{
		Dispatcher:     services.Dispatcher,
		Callbacks:      services.Callbacks,
		Finalizer:      services.Finalizer,
		Orchestrator:   services.Orchestrator,
		Query:          services.Query,
		Objects:        services.Objects,
		MaxUploadBytes: services.Config.Server.MaxUploadBytes,
	}
	if withMCP {
		mcpServer, err := newMCPServer()
		if err != nil {
			return err
		}
		deps.MCP = mcpServer.Handler()
	}

	server := httpapi.NewServer(addr, httpapi.NewHandler(deps))
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("listening on %s", server.Addr())
	cmd.Printf("stitch listening on %s\n", server.Addr())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var workerErr chan error
	if !noWorker && services.Worker != nil {
		workerErr = make(chan error, 1)
		go func() {
			workerErr <- services.Worker.Run(ctx)
		}()
	}

	return waitAndStop(ctx, server, workerErr)
}

// waitAndStop blocks until ctx is done, the server fails or the worker
// returns, then shuts the server down. A nil workerErr is never selected.
func waitAndStop(ctx context.Context, server *httpapi.Server, workerErr <-chan error) error {
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-server.Err():
	case runErr = <-workerErr:
		if runErr == nil {
			runErr = errors.New("submission worker stopped")
		}
	}

	logger.Info("shutting down")
	if err := server.Stop(context.Background()); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stopping server: %w", err))
	}
	return runErr
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if services.Worker == nil {
		return errors.New("submission worker not configured")
	}
	return services.Worker.Run(cmd.Context())
}
