package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
	"github.com/nao1215/trafficcloak/internal/database"
	"github.com/nao1215/trafficcloak/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session history as a JSON API",
		Long: `Serve starts a read-only HTTP API over the history database, for
dashboards and health checks next to a long-running "run --loop".

Routes:
  GET /healthz         liveness
  GET /sessions        recent sessions (?kind=search|crawl|lookup&limit=N)
  GET /sessions/:id    one session
  GET /stats           session counts per kind and terminal state

Examples:
  trafficcloak serve --addr 127.0.0.1:8088`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("addr", "a", config.DefaultServeAddress, "Listen address")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	db, err := database.Open(a.cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving session history from %s on http://%s\n", db.Path(), addr)
	return server.New(db, server.WithLogger(a.logger)).Run(ctx, addr)
}
