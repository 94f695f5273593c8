// Package scrape runs fact sheet jobs: it asks a Source for the raw report
// text, reconstructs the fields and shapes the API response.
package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"factsheet/internal/factsheet"
	"factsheet/internal/logging"
)

// Source delivers the raw text of one report. Implementations own their
// waits and retries; the browser-driven portal is the production one.
type Source interface {
	FetchReport(ctx context.Context, job Job) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, job Job) (string, error)

// FetchReport calls f.
func (f SourceFunc) FetchReport(ctx context.Context, job Job) (string, error) {
	return f(ctx, job)
}

// Recorder keeps completed scrapes, e.g. the history store.
type Recorder interface {
	Record(ctx context.Context, job Job, result *Result) error
}

// Options configures a Service.
type Options struct {
	PortalURL     string
	DefaultWait   time.Duration
	OutputDir     string
	MaxConcurrent int
	// Headed opens a visible browser for jobs that leave headless unset.
	Headed bool
}

// Result is the response of one scrape.
type Result struct {
	OK        bool                  `json:"ok"`
	Fields    *factsheet.Structured `json:"fields"`
	SavedPath *string               `json:"saved_path"`
	Meta      map[string]string     `json:"meta"`

	// ID is the job ID, also reported in Meta["job_id"].
	ID      string             `json:"-"`
	Records []factsheet.Record `json:"-"`
}

// Degraded reports whether only the raw-text fallback record was produced.
func (r *Result) Degraded() bool {
	return factsheet.Degraded(r.Records)
}

// Service runs jobs against a Source.
type Service struct {
	source   Source
	opts     Options
	recorder Recorder
	logger   *zap.Logger
	newID    func() string
}

// NewService creates a service. A nil logger disables logging.
func NewService(source Source, opts Options, logger *zap.Logger) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = 25 * time.Second
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Service{
		source: source,
		opts:   opts,
		logger: logging.For(logger, logging.CategoryScrape),
		newID:  uuid.NewString,
	}
}

// WithRecorder makes the service hand every successful result to r.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// DefaultWait returns the wait budget applied to jobs without one.
func (s *Service) DefaultWait() time.Duration {
	return s.opts.DefaultWait
}

// Run executes one job.
func (s *Service) Run(ctx context.Context, job Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if job.Headless == nil {
		headless := !s.opts.Headed
		job.Headless = &headless
	}

	id := s.newID()
	log := s.logger.With(zap.String("job_id", id), zap.String("organisation", job.Organisation))
	start := time.Now()

	raw, err := s.source.FetchReport(ctx, job)
	if err != nil {
		log.Warn("report fetch failed", zap.Error(err), zap.Stringer("kind", Kind(err)))
		return nil, fmt.Errorf("fetch report: %w", err)
	}

	result := Build(raw)
	result.ID = id
	result.Meta["url"] = s.opts.PortalURL
	result.Meta["headless"] = strconv.FormatBool(job.IsHeadless())
	result.Meta["job_id"] = id

	if job.SaveJSON {
		path, err := s.save(job.Basename(), result.Fields)
		if err != nil {
			return nil, fmt.Errorf("persist fields: %w", err)
		}
		result.SavedPath = &path
	}

	log.Info("scrape completed",
		zap.Int("fields", result.Fields.Len()),
		zap.Bool("degraded", result.Degraded()),
		zap.Duration("elapsed", time.Since(start)))

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, job, result); err != nil {
			log.Warn("failed to record scrape", zap.Error(err))
		}
	}
	return result, nil
}

// Build reconstructs raw report text into a result without job metadata.
func Build(raw string) *Result {
	records := factsheet.Reconstruct(raw)
	return &Result{
		OK:      true,
		Fields:  factsheet.NewStructured(records),
		Records: records,
		Meta: map[string]string{
			"degraded": strconv.FormatBool(factsheet.Degraded(records)),
		},
	}
}

func (s *Service) save(basename string, fields *factsheet.Structured) (string, error) {
	data, err := fields.JSON()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0755); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(s.opts.OutputDir, basename+".json"))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// BatchItem is the outcome of one job of a batch.
type BatchItem struct {
	Index  int     `json:"index"`
	Status int     `json:"status"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// RunBatch runs jobs concurrently, at most Options.MaxConcurrent at a time.
// Each job gets its own browser session from the source. Items are returned
// in job order.
func (s *Service) RunBatch(ctx context.Context, jobs []Job) []BatchItem {
	items := make([]BatchItem, len(jobs))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrent)
	for i, job := range jobs {
		g.Go(func() error {
			items[i] = BatchItem{Index: i}
			if err := ctx.Err(); err != nil {
				items[i].Status = HTTPStatus(err)
				items[i].Error = Detail(err)
				return nil
			}
			res, err := s.Run(ctx, job)
			if err != nil {
				items[i].Status = HTTPStatus(err)
				items[i].Error = Detail(err)
				return nil
			}
			items[i].Status = 200
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("batch completed", zap.Int("jobs", len(jobs)))
	return items
}
