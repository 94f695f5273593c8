package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"factsheet/internal/browser"
	"factsheet/internal/config"
	"factsheet/internal/logging"
	"factsheet/internal/scrape"
	"factsheet/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "factsheet",
	Short: "UPSDC eHRMS employee fact sheet scraper and cleaner",
	Long: `factsheet reads Employee Fact Sheets from the UPSDC eHRMS public reports
portal and rebuilds the numbered fields from the report's flattened text.

Use "clean" for text you already have, "scrape" or "batch" to drive the portal,
and "serve" to expose both over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.For(logger, logging.CategoryBoot).Debug("config loaded",
			zap.String("path", configPath),
			zap.String("portal", cfg.Portal.URL))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps bundles the collaborators a scraping command needs.
type deps struct {
	portal  *browser.Portal
	service *scrape.Service
	history *store.Store
}

// newDeps wires the portal driver, the scrape service and, when enabled,
// the history store.
func newDeps() (*deps, error) {
	portal := browser.NewPortal(browser.ConfigFrom(cfg), browser.PortalOptionsFrom(cfg), logger)
	svc := scrape.NewService(portal, scrape.Options{
		PortalURL:     cfg.Portal.URL,
		DefaultWait:   cfg.GetDefaultWait(),
		OutputDir:     cfg.Scrape.OutputDir,
		MaxConcurrent: cfg.Scrape.MaxConcurrent,
		Headed:        !cfg.Browser.Headless,
	}, logger)

	rt := &deps{portal: portal, service: svc}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		rt.history = st
		svc.WithRecorder(st)
	}
	return rt, nil
}

func (rt *deps) Close(ctx context.Context) {
	if err := rt.portal.Shutdown(ctx); err != nil {
		logger.Warn("browser shutdown failed", zap.Error(err))
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			logger.Warn("history close failed", zap.Error(err))
		}
	}
}
