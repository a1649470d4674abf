// Package extractor turns a job's downloaded files into the contents of its
// target directory.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spachava753/wsfetch/internal/archive"
	"github.com/spachava753/wsfetch/internal/models"
	"github.com/spachava753/wsfetch/internal/util"
)

// ErrWrapperMissing is returned when the main workspace archive does not
// contain a top-level directory named after the job.
var ErrWrapperMissing = errors.New("wrapper directory not found in archive")

// Classify picks the extraction rule for a file in the job's download
// directory.
func Classify(job models.Job, filename string) models.ExtractRule {
	switch {
	case filename == job.Name+".zip":
		return models.RuleMainArchive
	case strings.HasSuffix(filename, ".zip"):
		return models.RuleArchive
	default:
		return models.RuleCopy
	}
}

// Extractor unpacks and merges downloads into target directories. The
// staging directory is shared by every job and must not be used by two
// extractions at once.
type Extractor struct {
	cfg     models.Config
	staging string
}

// New creates an Extractor that stages main archives under staging.
func New(cfg models.Config, staging string) *Extractor {
	return &Extractor{
		cfg:     cfg,
		staging: staging,
	}
}

// StagingDir returns the staging directory path.
func (e *Extractor) StagingDir() string {
	return e.staging
}

type plannedEntry struct {
	name string
	path string
	rule models.ExtractRule
}

// ExtractJob processes every file in the job's download directory. Per-file
// failures are recorded in the results; the returned error is only set when
// the target or staging directory cannot be prepared or the download
// directory cannot be read.
func (e *Extractor) ExtractJob(ctx context.Context, job models.Job) ([]models.ExtractResult, error) {
	downloadDir := e.cfg.JobDownloadDir(job)
	targetDir := e.cfg.JobTargetDir(job)

	if err := util.EnsureDir(targetDir); err != nil {
		return nil, err
	}
	if err := util.EnsureDir(e.staging); err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(e.staging); err != nil {
			slog.Warn("removing staging directory", "path", e.staging, "error", err)
		}
	}()

	planned, err := e.plan(job, downloadDir)
	if err != nil {
		return nil, err
	}

	for name, sources := range collisions(job, planned) {
		slog.Warn("destination written by more than one download, later one wins",
			"job", job.Name, "name", name, "sources", sources)
	}

	results := make([]models.ExtractResult, 0, len(planned))
	for i, p := range planned {
		if ctx.Err() != nil {
			var left []string
			for _, rest := range planned[i:] {
				left = append(left, rest.name)
			}
			slog.Warn("extraction interrupted", "job", job.Name, "unprocessed", left)
			break
		}

		slog.Debug("extracting", "job", job.Name, "file", p.name, "rule", p.rule)

		var typ models.ErrorType
		var err error
		switch p.rule {
		case models.RuleMainArchive:
			typ, err = e.mergeMainArchive(job, p.path, targetDir)
		case models.RuleArchive:
			typ, err = models.ErrArchiveInvalid, archive.Extract(p.path, targetDir, e.archiveOptions())
		default:
			typ, err = models.ErrCopyFailed, util.CopyFile(p.path, filepath.Join(targetDir, p.name))
		}

		res := models.ExtractResult{Filename: p.name, Rule: p.rule}
		if err != nil {
			res.Error = &models.ItemError{Type: typ, Message: err.Error()}
		}
		results = append(results, res)
	}

	return results, nil
}

// plan lists the download directory and orders the files: the main archive
// first, then other archives, then plain files, each group by name.
func (e *Extractor) plan(job models.Job, downloadDir string) ([]plannedEntry, error) {
	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading download directory: %w", err)
	}

	groups := map[models.ExtractRule][]plannedEntry{}
	for _, entry := range entries {
		if entry.IsDir() {
			slog.Debug("skipping directory in downloads", "job", job.Name, "name", entry.Name())
			continue
		}
		rule := Classify(job, entry.Name())
		groups[rule] = append(groups[rule], plannedEntry{
			name: entry.Name(),
			path: filepath.Join(downloadDir, entry.Name()),
			rule: rule,
		})
	}

	// os.ReadDir already sorts by name
	var planned []plannedEntry
	for _, rule := range []models.ExtractRule{models.RuleMainArchive, models.RuleArchive, models.RuleCopy} {
		planned = append(planned, groups[rule]...)
	}
	return planned, nil
}

// mergeMainArchive unpacks src into staging and merges the contents of the
// <job> wrapper directory into targetDir.
func (e *Extractor) mergeMainArchive(job models.Job, src, targetDir string) (models.ErrorType, error) {
	if err := util.ResetDir(e.staging); err != nil {
		return models.ErrInternalError, err
	}
	defer func() {
		if err := util.ResetDir(e.staging); err != nil {
			slog.Warn("clearing staging directory", "path", e.staging, "error", err)
		}
	}()

	if err := archive.Extract(src, e.staging, e.archiveOptions()); err != nil {
		return models.ErrArchiveInvalid, err
	}

	wrapper := filepath.Join(e.staging, job.Name)
	info, err := os.Stat(wrapper)
	if err != nil || !info.IsDir() {
		return models.ErrWrapperMissing, fmt.Errorf("%w: expected %s/ in %s", ErrWrapperMissing, job.Name, filepath.Base(src))
	}

	children, err := os.ReadDir(wrapper)
	if err != nil {
		return models.ErrInternalError, fmt.Errorf("reading wrapper directory: %w", err)
	}

	for _, child := range children {
		from := filepath.Join(wrapper, child.Name())
		to := filepath.Join(targetDir, child.Name())
		if child.IsDir() {
			if err := util.ReplaceDir(from, to); err != nil {
				return models.ErrCopyFailed, err
			}
			continue
		}
		if err := util.CopyFile(from, to); err != nil {
			return models.ErrCopyFailed, err
		}
	}

	slog.Debug("merged workspace archive", "job", job.Name, "entries", len(children), "target", targetDir)
	return "", nil
}

func (e *Extractor) archiveOptions() archive.Options {
	return archive.Options{MaxEntryBytes: e.cfg.Limits.MaxEntryBytes}
}

// collisions maps every top-level destination name claimed by more than one
// planned entry to the entries claiming it, in processing order.
func collisions(job models.Job, planned []plannedEntry) map[string][]string {
	claims := map[string][]string{}
	for _, p := range planned {
		var names []string
		var err error
		switch p.rule {
		case models.RuleMainArchive:
			names, err = archive.TopLevelNames(p.path, job.Name)
		case models.RuleArchive:
			names, err = archive.TopLevelNames(p.path, "")
		default:
			names = []string{p.name}
		}
		if err != nil {
			// Reported when the entry itself is processed
			continue
		}
		for _, n := range names {
			claims[n] = append(claims[n], p.name)
		}
	}

	out := map[string][]string{}
	for name, sources := range claims {
		if len(sources) > 1 {
			out[name] = sources
		}
	}
	return out
}
