package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fission/internal/logging"
	"fission/internal/mcp"
	httpserver "fission/internal/server/http"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and live event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			cfg := app.Config.Server
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			srv, err := httpserver.NewServer(app.Notes, app.Hub, app.Metrics, httpserver.Config{
				Host:       cfg.Host,
				Port:       cfg.Port,
				EnableCORS: cfg.EnableCORS,
				Debug:      cfg.Debug,
				Version:    appVersion(),
			}, cli.componentLogger("http"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

func newMCPCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve meetings and extraction as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries JSON-RPC frames.
			logging.SetOutput(os.Stderr)
			cli.jsonOutput = true

			app, err := cli.app()
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(app.Notes, appVersion(), cli.componentLogger("mcp"))
			if err != nil {
				return err
			}
			return srv.ServeStdio()
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
