package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"factsheet/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Clean fact sheet dumps as they land in a directory",
	Long: `Watches a directory and, for every new or updated .txt, .html or .htm
file, writes the reconstructed fields as <name>.json next to it. Runs until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	w, err := watch.New(args[0], logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}

	<-w.Done()
	w.Stop()

	stats := w.Stats()
	logger.Info("watch finished",
		zap.Int("processed", stats.Processed),
		zap.Int("degraded", stats.Degraded),
		zap.Int("errors", stats.Errors))
	return nil
}
