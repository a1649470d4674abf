// Package executor drives a run: for every job in the list it fetches the
// workspace files and then extracts them, printing progress as it goes.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/wsfetch/internal/config"
	"github.com/spachava753/wsfetch/internal/extractor"
	"github.com/spachava753/wsfetch/internal/fetcher"
	"github.com/spachava753/wsfetch/internal/joblist"
	"github.com/spachava753/wsfetch/internal/models"
	"github.com/spachava753/wsfetch/internal/report"
	"github.com/spachava753/wsfetch/internal/util"
)

// JobFetcher downloads the workspace files of a single job.
type JobFetcher interface {
	FetchJob(ctx context.Context, job models.Job) []models.FetchResult
}

// JobExtractor turns a job's downloads into its target directory.
type JobExtractor interface {
	ExtractJob(ctx context.Context, job models.Job) ([]models.ExtractResult, error)
}

// Orchestrator processes jobs one after another.
type Orchestrator struct {
	cfg      models.Config
	fetch    JobFetcher
	extract  JobExtractor
	reporter *report.Reporter
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cfg models.Config, fetch JobFetcher, extract JobExtractor, reporter *report.Reporter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		fetch:    fetch,
		extract:  extract,
		reporter: reporter,
	}
}

// Run fetches and extracts every job in order. Cancelling ctx stops the run
// before the next job starts; jobs that never started are counted as
// skipped.
func (o *Orchestrator) Run(ctx context.Context, jobs []models.Job) *models.RunResult {
	run := &models.RunResult{
		RunID:     uuid.NewString(),
		TotalJobs: len(jobs),
		StartedAt: time.Now(),
		Jobs:      make([]models.JobResult, 0, len(jobs)),
	}

	slog.Info("starting run", "run_id", run.RunID, "jobs", len(jobs))

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		run.Jobs = append(run.Jobs, o.runJob(ctx, job))
	}

	aggregate(run)
	run.SkippedJobs = run.TotalJobs - run.ProcessedJobs
	if run.SkippedJobs > 0 {
		run.Cancelled = true
		slog.Warn("run cancelled", "run_id", run.RunID, "skipped", run.SkippedJobs)
	}
	run.EndedAt = time.Now()
	run.TotalDurationSec = run.EndedAt.Sub(run.StartedAt).Seconds()

	return run
}

func (o *Orchestrator) runJob(ctx context.Context, job models.Job) models.JobResult {
	res := models.JobResult{
		Name:        job.Name,
		DownloadDir: o.cfg.JobDownloadDir(job),
		TargetDir:   o.cfg.JobTargetDir(job),
	}

	o.reporter.Job(job.Name)
	res.Fetches = o.fetch.FetchJob(ctx, job)
	for _, f := range res.Fetches {
		o.reporter.Fetch(f)
	}

	// Files from earlier runs are extracted even if every fetch failed
	o.reporter.Extracting(job.Name)
	extractions, err := o.extract.ExtractJob(ctx, job)
	if err != nil {
		slog.Error("extraction pass failed", "job", job.Name, "error", err)
		extractions = append(extractions, models.ExtractResult{
			Filename: job.Name,
			Error:    &models.ItemError{Type: models.ErrInternalError, Message: err.Error()},
		})
	}
	res.Extractions = extractions
	for _, e := range res.Extractions {
		o.reporter.Extract(e)
	}

	slog.Debug("job finished", "job", job.Name, "failed", res.Failed())
	return res
}

func aggregate(run *models.RunResult) {
	run.ProcessedJobs = len(run.Jobs)
	for _, j := range run.Jobs {
		for _, f := range j.Fetches {
			if f.Status == models.FetchOK {
				run.FilesFetched++
				run.BytesDownloaded += f.Bytes
			} else {
				run.FetchFailures++
			}
		}
		for _, e := range j.Extractions {
			if e.Error != nil {
				run.ExtractFailures++
			} else {
				run.FilesExtracted++
			}
		}
	}
}

// Options configures RunFromFiles.
type Options struct {
	// JobsPath is the newline-delimited job list. Defaults to jobs.txt.
	JobsPath    string
	ConfigPath  string
	EnvFile     string
	SummaryPath string
	// WorkDir anchors relative paths from the configuration.
	WorkDir string
	// Lookup defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// Out receives the console output. Defaults to os.Stdout.
	Out io.Writer
}

// RunFromFiles loads the configuration and job list and processes every
// job. Configuration and job list problems are printed to Out and returned
// before any job runs.
func RunFromFiles(ctx context.Context, opts Options) (*models.RunResult, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.JobsPath == "" {
		opts.JobsPath = joblist.DefaultPath
	}
	reporter := report.New(opts.Out)

	cfg, err := config.Load(config.Options{
		ConfigPath: opts.ConfigPath,
		EnvFile:    opts.EnvFile,
		WorkDir:    opts.WorkDir,
		Lookup:     opts.Lookup,
	})
	if err != nil {
		reporter.ConfigError(err)
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	jobsPath := opts.JobsPath
	if opts.WorkDir != "" && !filepath.IsAbs(jobsPath) {
		jobsPath = filepath.Join(opts.WorkDir, jobsPath)
	}
	jobs, err := joblist.Load(jobsPath)
	if err != nil {
		if errors.Is(err, joblist.ErrNotFound) {
			reporter.MissingJobList(opts.JobsPath)
		} else {
			reporter.Error(err)
		}
		return nil, fmt.Errorf("loading job list: %w", err)
	}

	staging := cfg.StagingDir
	if staging == "" {
		staging = filepath.Join(os.TempDir(), "wsfetch-staging-"+uuid.NewString())
	}

	orchestrator := NewOrchestrator(cfg, fetcher.New(cfg), extractor.New(cfg, staging), reporter)
	run := orchestrator.Run(ctx, jobs)
	reporter.Summary(run)

	if opts.SummaryPath != "" {
		if err := writeSummary(opts.SummaryPath, run); err != nil {
			reporter.Error(err)
			return run, err
		}
	}

	return run, nil
}

func writeSummary(path string, run *models.RunResult) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run summary: %w", err)
	}
	data = append(data, '\n')
	if _, err := util.WriteFileAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}
