package main

import (
	"context"

	"github.com/spf13/cobra"

	"factsheet/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves GET /health, POST /scrape, POST /scrape/batch, POST /parse and,
when the store is enabled, GET /history and GET /history/{id}. Stops
gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	rt, err := newDeps()
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var history server.History
	if rt.history != nil {
		history = rt.history
	}
	srv := server.New(rt.service, history, server.Options{
		Version:         version,
		ReadTimeout:     cfg.GetReadTimeout(),
		WriteTimeout:    cfg.GetWriteTimeout(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
	}, logger)

	ctx, cancel := signalContext()
	defer cancel()
	return srv.ListenAndServe(ctx, addr)
}
