package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"factsheet/internal/scrape"
)

var (
	scrapeJob      scrape.Job
	scrapeWait     time.Duration
	scrapeHeadless bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch one fact sheet from the portal",
	Long: `Fills the portal form with the given Parent and Organisation (and
optionally the employee code box), opens the report and prints the response
JSON: {ok, fields, saved_path, meta}.`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

var batchCmd = &cobra.Command{
	Use:   "batch <jobs.yaml>",
	Short: "Fetch many fact sheets concurrently",
	Long: `Reads a YAML list of jobs (parent, organisation, last_field, wait_timeout,
headless, save_json, save_basename) and runs them with at most
scrape.max_concurrent browser sessions at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeJob.Parent, "parent", "", "Parent dropdown text (required)")
	scrapeCmd.Flags().StringVar(&scrapeJob.Organisation, "organisation", "", "Organisation dropdown text (required)")
	scrapeCmd.Flags().StringVar(&scrapeJob.LastField, "last-field", "", "Text for the box under Organisation, e.g. an eHRMS code")
	scrapeCmd.Flags().DurationVar(&scrapeWait, "wait", 0, "Wait budget for the report (default from config)")
	scrapeCmd.Flags().BoolVar(&scrapeHeadless, "headless", true, "Run Chrome headless; overrides browser.headless")
	scrapeCmd.Flags().BoolVar(&scrapeJob.SaveJSON, "save", false, "Write the fields to <output_dir>/<basename>.json")
	scrapeCmd.Flags().StringVar(&scrapeJob.SaveBasename, "basename", "", "File name for --save without extension")
	scrapeCmd.MarkFlagRequired("parent")
	scrapeCmd.MarkFlagRequired("organisation")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScrape(cmd *cobra.Command, args []string) error {
	job := scrapeJob
	if cmd.Flags().Changed("headless") {
		job.Headless = &scrapeHeadless
	}
	if scrapeWait > 0 {
		job.WaitTimeout = int(scrapeWait.Round(time.Second) / time.Second)
	}

	rt, err := newDeps()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	defer rt.Close(context.Background())

	res, err := rt.service.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("%s", scrape.Detail(err))
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runBatch(cmd *cobra.Command, args []string) error {
	jobs, err := loadJobs(args[0])
	if err != nil {
		return err
	}

	rt, err := newDeps()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	defer rt.Close(context.Background())

	items := rt.service.RunBatch(ctx, jobs)
	failed := 0
	for _, item := range items {
		if item.Result == nil {
			failed++
			logger.Warn("job failed", zap.Int("index", item.Index), zap.String("error", item.Error))
		}
	}
	if err := printJSON(cmd.OutOrStdout(), items); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(items))
	}
	return nil
}

func loadJobs(path string) ([]scrape.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	var jobs []scrape.Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse jobs %s: %w", path, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no jobs in %s", path)
	}
	for i, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}
	return jobs, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
