package executor_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spachava753/wsfetch/internal/config"
	"github.com/spachava753/wsfetch/internal/executor"
	"github.com/spachava753/wsfetch/internal/joblist"
	"github.com/spachava753/wsfetch/internal/models"
	"github.com/spachava753/wsfetch/internal/report"
)

// mockFetcher records the jobs it was asked for and returns canned results.
type mockFetcher struct {
	calls   []string
	results []models.FetchResult
	onFetch func(job models.Job)
}

func (m *mockFetcher) FetchJob(ctx context.Context, job models.Job) []models.FetchResult {
	m.calls = append(m.calls, job.Name)
	if m.onFetch != nil {
		m.onFetch(job)
	}
	return m.results
}

type mockExtractor struct {
	calls   []string
	results []models.ExtractResult
	err     error
}

func (m *mockExtractor) ExtractJob(ctx context.Context, job models.Job) ([]models.ExtractResult, error) {
	m.calls = append(m.calls, job.Name)
	return m.results, m.err
}

func jobs(names ...string) []models.Job {
	out := make([]models.Job, len(names))
	for i, n := range names {
		out[i] = models.Job{Name: n}
	}
	return out
}

func TestRunProcessesJobsInOrder(t *testing.T) {
	fetch := &mockFetcher{results: []models.FetchResult{
		{Target: models.FetchTarget{Filename: "a.zip"}, Status: models.FetchOK, Bytes: 10},
		{Target: models.FetchTarget{Filename: ".gitignore"}, Status: models.FetchHTTPStatus, StatusCode: 404},
	}}
	extract := &mockExtractor{results: []models.ExtractResult{
		{Filename: "a.zip", Rule: models.RuleMainArchive},
		{Filename: ".git.zip", Rule: models.RuleArchive, Error: &models.ItemError{Type: models.ErrArchiveInvalid, Message: "zip: not a valid zip file"}},
	}}

	var out bytes.Buffer
	o := executor.NewOrchestrator(models.Config{}, fetch, extract, report.New(&out))
	run := o.Run(context.Background(), jobs("one", "two", "one"))

	if got := strings.Join(fetch.calls, ","); got != "one,two,one" {
		t.Errorf("fetch order = %s", got)
	}
	if got := strings.Join(extract.calls, ","); got != "one,two,one" {
		t.Errorf("extract order = %s", got)
	}

	if run.RunID == "" {
		t.Error("expected a run ID")
	}
	if run.TotalJobs != 3 || run.ProcessedJobs != 3 || run.SkippedJobs != 0 || run.Cancelled {
		t.Errorf("unexpected job counts: %+v", run)
	}
	if run.FilesFetched != 3 || run.FetchFailures != 3 || run.BytesDownloaded != 30 {
		t.Errorf("unexpected fetch counts: fetched=%d failures=%d bytes=%d", run.FilesFetched, run.FetchFailures, run.BytesDownloaded)
	}
	if run.FilesExtracted != 3 || run.ExtractFailures != 3 {
		t.Errorf("unexpected extract counts: extracted=%d failures=%d", run.FilesExtracted, run.ExtractFailures)
	}

	text := out.String()
	for _, want := range []string{
		"Processing one:\n[OK] a.zip\n[404] .gitignore\nExtracting one:\n[OK] a.zip\n[Error] .git.zip: zip: not a valid zip file\n",
		"Processing two:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunExtractionErrorDoesNotStopRun(t *testing.T) {
	fetch := &mockFetcher{}
	extract := &mockExtractor{err: errors.New("reading download directory: permission denied")}

	var out bytes.Buffer
	run := executor.NewOrchestrator(models.Config{}, fetch, extract, report.New(&out)).
		Run(context.Background(), jobs("a", "b"))

	if run.ProcessedJobs != 2 {
		t.Errorf("expected both jobs processed, got %d", run.ProcessedJobs)
	}
	if run.ExtractFailures != 2 {
		t.Errorf("expected one failure per job, got %d", run.ExtractFailures)
	}
	if !strings.Contains(out.String(), "[Error] a: reading download directory: permission denied") {
		t.Errorf("missing job-level error line:\n%s", out.String())
	}
	if run.Jobs[0].Extractions[0].Error.Type != models.ErrInternalError {
		t.Errorf("expected internal error type, got %+v", run.Jobs[0].Extractions[0].Error)
	}
}

func TestRunCancellationSkipsRemainingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetch := &mockFetcher{onFetch: func(job models.Job) {
		if job.Name == "second" {
			cancel()
		}
	}}
	extract := &mockExtractor{}

	run := executor.NewOrchestrator(models.Config{}, fetch, extract, report.New(&bytes.Buffer{})).
		Run(ctx, jobs("first", "second", "third", "fourth"))

	if !run.Cancelled {
		t.Error("expected run to be marked cancelled")
	}
	if run.ProcessedJobs != 2 || run.SkippedJobs != 2 {
		t.Errorf("processed=%d skipped=%d, want 2 and 2", run.ProcessedJobs, run.SkippedJobs)
	}
	if got := strings.Join(fetch.calls, ","); got != "first,second" {
		t.Errorf("fetch calls = %s", got)
	}
}

// workspaceZip builds a zip archive in memory.
func workspaceZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestRunFromFilesEndToEnd(t *testing.T) {
	mainZip := workspaceZip(t, map[string]string{"build-123/src/app.txt": "hello"})
	gitZip := workspaceZip(t, map[string]string{".git/HEAD": "ref: refs/heads/main\n"})

	var sessions []string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(models.DefaultSessionCookieName); err == nil {
			sessions = append(sessions, c.Value)
		}
		switch r.URL.Path {
		case "/job/ci/build-123/ws/*zip*/build-123.zip":
			w.Write(mainZip)
		case "/job/ci/build-123/ws/.gitignore":
			w.Write([]byte("bin/\n"))
		case "/job/ci/build-123/ws/.git/*zip*/.git.zip":
			w.Write(gitZip)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(work, "jobs.txt"), []byte("build-123\n\nmissing-job\n"), 0644); err != nil {
		t.Fatal(err)
	}
	summary := filepath.Join(work, "out", "summary.json")

	var out bytes.Buffer
	run, err := executor.RunFromFiles(context.Background(), executor.Options{
		WorkDir:     work,
		SummaryPath: summary,
		Out:         &out,
		Lookup: mapLookup(map[string]string{
			config.EnvHost:          server.URL,
			config.EnvBasePath:      "/job/ci",
			config.EnvCookieSession: "node0secret",
			config.EnvJobPrefix:     "build-",
			config.EnvStagingDir:    filepath.Join(work, "staging"),
		}),
	})
	if err != nil {
		t.Fatalf("RunFromFiles: %v\n%s", err, out.String())
	}

	if run.TotalJobs != 2 || run.ProcessedJobs != 2 {
		t.Errorf("unexpected job counts: %+v", run)
	}
	if run.FetchFailures != 3 {
		t.Errorf("expected 3 failed fetches for missing-job, got %d", run.FetchFailures)
	}
	if len(sessions) != 6 {
		t.Errorf("expected a session cookie on all 6 requests, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s != "node0secret" {
			t.Errorf("unexpected session cookie %q", s)
		}
	}

	target := filepath.Join(work, "workspace", "123")
	for path, want := range map[string]string{
		"src/app.txt": "hello",
		".gitignore":  "bin/\n",
		".git/HEAD":   "ref: refs/heads/main\n",
	} {
		data, err := os.ReadFile(filepath.Join(target, path))
		if err != nil {
			t.Errorf("reading %s: %v", path, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", path, data, want)
		}
	}
	if _, err := os.Stat(filepath.Join(work, "downloads", "build-123", "build-123.zip")); err != nil {
		t.Errorf("expected download to be kept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "staging")); !os.IsNotExist(err) {
		t.Errorf("expected staging directory removed, stat err = %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Processing build-123:",
		"[OK] build-123.zip",
		"[OK] .gitignore",
		"[OK] .git.zip",
		"Extracting build-123:",
		"Processing missing-job:",
		"[404] missing-job.zip",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	data, err := os.ReadFile(summary)
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	var decoded models.RunResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if decoded.RunID != run.RunID || len(decoded.Jobs) != 2 {
		t.Errorf("summary does not match run: %+v", decoded)
	}
	if strings.Contains(string(data), "node0secret") {
		t.Error("summary must not contain the session cookie")
	}
}

func TestRunFromFilesMissingJobList(t *testing.T) {
	work := t.TempDir()

	var out bytes.Buffer
	_, err := executor.RunFromFiles(context.Background(), executor.Options{
		WorkDir: work,
		Out:     &out,
		Lookup: mapLookup(map[string]string{
			config.EnvHost:          "https://ci.example.com",
			config.EnvBasePath:      "/job/ci",
			config.EnvCookieSession: "abc",
		}),
	})
	if !errors.Is(err, joblist.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := out.String(); got != "Error: Missing jobs.txt file\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunFromFilesConfigError(t *testing.T) {
	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(work, "jobs.txt"), []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	_, err := executor.RunFromFiles(context.Background(), executor.Options{
		WorkDir: work,
		Out:     &out,
		Lookup: mapLookup(map[string]string{
			config.EnvBasePath: "/job/ci",
		}),
	})

	var missing *config.MissingError
	if !errors.As(err, &missing) || missing.Name != config.EnvHost {
		t.Fatalf("expected missing %s, got %v", config.EnvHost, err)
	}
	if got := out.String(); got != "Configuration Error: Missing required environment variable: JENKINS_HOST\n" {
		t.Errorf("output = %q", got)
	}
	if _, err := os.Stat(filepath.Join(work, "downloads")); !os.IsNotExist(err) {
		t.Error("no job should run after a configuration error")
	}
}
