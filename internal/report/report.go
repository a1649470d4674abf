// Package report prints human-readable progress lines to the console.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/spachava753/wsfetch/internal/models"
)

// Reporter writes per-job headers and per-file status lines. Styling is only
// applied when w is a colour-capable terminal.
type Reporter struct {
	w io.Writer

	headerStyle lipgloss.Style
	okStyle     lipgloss.Style
	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style
	mutedStyle  lipgloss.Style
}

// New creates a Reporter writing to w.
func New(w io.Writer) *Reporter {
	re := lipgloss.NewRenderer(w)
	return &Reporter{
		w:           w,
		headerStyle: re.NewStyle().Bold(true),
		okStyle:     re.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		statusStyle: re.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		errorStyle:  re.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		mutedStyle:  re.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Job prints the section header for a job.
func (r *Reporter) Job(name string) {
	fmt.Fprintf(r.w, "\n%s\n", r.headerStyle.Render(fmt.Sprintf("Processing %s:", name)))
}

// Extracting prints the sub-header shown before a job's extraction lines.
func (r *Reporter) Extracting(name string) {
	fmt.Fprintln(r.w, r.mutedStyle.Render(fmt.Sprintf("Extracting %s:", name)))
}

// Fetch prints "[OK] name", "[<code>] name" or "[Error] name: message".
func (r *Reporter) Fetch(res models.FetchResult) {
	name := res.Target.Filename
	switch res.Status {
	case models.FetchOK:
		r.ok(name)
	case models.FetchHTTPStatus:
		fmt.Fprintf(r.w, "%s %s\n", r.statusStyle.Render("["+strconv.Itoa(res.StatusCode)+"]"), name)
	default:
		r.fail(name, res.Error)
	}
}

// Extract prints "[OK] name" or "[Error] name: message".
func (r *Reporter) Extract(res models.ExtractResult) {
	if res.Error != nil {
		r.fail(res.Filename, res.Error)
		return
	}
	r.ok(res.Filename)
}

// MissingJobList prints the fatal message for an absent job list.
func (r *Reporter) MissingJobList(path string) {
	fmt.Fprintf(r.w, "%s Missing %s file\n", r.errorStyle.Render("Error:"), path)
}

// ConfigError prints the fatal message for an invalid configuration.
func (r *Reporter) ConfigError(err error) {
	fmt.Fprintf(r.w, "%s %s\n", r.errorStyle.Render("Configuration Error:"), err)
}

// Error prints any other fatal error.
func (r *Reporter) Error(err error) {
	fmt.Fprintf(r.w, "%s %s\n", r.errorStyle.Render("Error:"), err)
}

// Summary prints the closing totals of a run.
func (r *Reporter) Summary(run *models.RunResult) {
	fmt.Fprintln(r.w)
	line := fmt.Sprintf("Jobs: %d/%d processed, fetched %d file(s) (%s), %d fetch failure(s), extracted %d file(s), %d extraction failure(s)",
		run.ProcessedJobs, run.TotalJobs,
		run.FilesFetched, humanize.Bytes(uint64(run.BytesDownloaded)), run.FetchFailures,
		run.FilesExtracted, run.ExtractFailures)
	fmt.Fprintln(r.w, r.mutedStyle.Render(line))
	if run.Cancelled {
		fmt.Fprintln(r.w, r.errorStyle.Render(fmt.Sprintf("Cancelled: %d job(s) skipped", run.SkippedJobs)))
	}
}

func (r *Reporter) ok(name string) {
	fmt.Fprintf(r.w, "%s %s\n", r.okStyle.Render("[OK]"), name)
}

func (r *Reporter) fail(name string, e *models.ItemError) {
	msg := "unknown error"
	if e != nil {
		msg = e.Message
	}
	fmt.Fprintf(r.w, "%s %s: %s\n", r.errorStyle.Render("[Error]"), name, msg)
}
