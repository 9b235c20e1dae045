package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/teamflow/internal/api"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the teamflow HTTP API.

The server exposes the agent catalog, the template library and workflow
editing and execution under /api/v1, with run activity streamed as
Server-Sent Events. Workflows are persisted in the configured store.

Examples:
  # Start with defaults (127.0.0.1:8080)
  teamflow serve

  # Start on custom host and port
  teamflow serve --host 0.0.0.0 --port 3000

  # Disable CORS (for production behind a reverse proxy)
  teamflow serve --no-cors`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost   string
	servePort   int
	serveNoCORS bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"host address to bind to (default: server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"port to listen on (default: server.port)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"disable CORS headers")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	bus := events.New(cfg.Events.BufferSize)
	defer bus.Close()

	ws, err := newWorkspace(cfg, logger, bus, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if serveNoCORS {
		serverOpts = append(serverOpts, api.WithoutCORS())
	}
	server := api.NewServer(ws, bus, serverOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	fmt.Fprintf(cmd.OutOrStdout(), "teamflow API listening on http://%s (store: %s)\n", addr, cfg.State.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.WithoutCancel(ctx))
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
