// Package fetcher downloads a job's workspace artifacts from Jenkins.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/spachava753/wsfetch/internal/models"
	"github.com/spachava753/wsfetch/internal/util"
)

// ErrTooLarge is returned when a response body exceeds the configured
// maximum download size.
var ErrTooLarge = errors.New("response exceeds maximum download size")

// Cookie names Jenkins expects besides the session cookie.
const (
	CookieTimestamperOffset = "jenkins-timestamper-offset"
	CookieScreenResolution  = "screenResolution"
)

// Fetcher issues authenticated GET requests for a job's fetch targets.
type Fetcher struct {
	cfg    models.Config
	client *http.Client
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// New creates a Fetcher. The default client skips TLS certificate
// verification and has no timeout unless cfg.HTTPTimeout is set.
func New(cfg models.Config, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Jenkins hosts commonly use self-signed certificates

	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.HTTPTimeout,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Referer returns <host><base_path>/<job>/ws/, used both as the Referer
// header and as the prefix of every fetch URL.
func Referer(cfg models.Config, job models.Job) string {
	return fmt.Sprintf("%s%s/%s/ws/", cfg.Host, cfg.BasePath, job.Name)
}

// Targets returns the three fixed fetch targets of a job: the workspace
// archive, .gitignore and the .git directory archive.
func Targets(cfg models.Config, job models.Job) []models.FetchTarget {
	referer := Referer(cfg, job)
	return []models.FetchTarget{
		{URL: referer + "*zip*/" + job.Name + ".zip", Filename: job.Name + ".zip", Job: job},
		{URL: referer + ".gitignore", Filename: ".gitignore", Job: job},
		{URL: referer + ".git/*zip*/.git.zip", Filename: ".git.zip", Job: job},
	}
}

// FetchJob downloads every target of job into the job's download directory.
// Failures are recorded per target and never stop the remaining targets.
func (f *Fetcher) FetchJob(ctx context.Context, job models.Job) []models.FetchResult {
	dir := f.cfg.JobDownloadDir(job)
	targets := Targets(f.cfg, job)
	results := make([]models.FetchResult, 0, len(targets))

	if err := util.EnsureDir(dir); err != nil {
		for _, t := range targets {
			results = append(results, errorResult(t, models.ErrWriteFailed, err))
		}
		return results
	}

	referer := Referer(f.cfg, job)
	for _, t := range targets {
		results = append(results, f.Fetch(ctx, t, referer, dir))
	}
	return results
}

// Fetch downloads a single target into dir.
func (f *Fetcher) Fetch(ctx context.Context, target models.FetchTarget, referer, dir string) models.FetchResult {
	slog.Debug("fetching", "job", target.Job.Name, "url", target.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return errorResult(target, models.ErrInternalError, fmt.Errorf("creating request: %w", err))
	}
	f.decorate(req, referer)

	resp, err := f.client.Do(req)
	if err != nil {
		return errorResult(target, models.ErrTransportFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("unexpected status", "url", target.URL, "status", resp.StatusCode)
		return models.FetchResult{
			Target:     target,
			Status:     models.FetchHTTPStatus,
			StatusCode: resp.StatusCode,
		}
	}

	limit := f.cfg.Limits.MaxDownloadBytes
	if limit > 0 && resp.ContentLength > limit {
		return errorResult(target, models.ErrWriteFailed,
			fmt.Errorf("%w (%s > %s)", ErrTooLarge, humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(limit))))
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		body = &maxBytesReader{r: resp.Body, remaining: limit}
	}

	path := filepath.Join(dir, target.Filename)
	n, err := util.WriteFileAtomic(path, body)
	if err != nil {
		errType := models.ErrWriteFailed
		if !errors.Is(err, ErrTooLarge) && ctx.Err() == nil {
			// Body read failures surface through the copy
			errType = models.ErrTransportFailed
		}
		return errorResult(target, errType, err)
	}

	slog.Debug("downloaded", "file", path, "size", humanize.Bytes(uint64(n)))
	return models.FetchResult{
		Target:     target,
		Status:     models.FetchOK,
		StatusCode: resp.StatusCode,
		Bytes:      n,
	}
}

// decorate attaches the configured headers and cookies. Empty values are
// not sent.
func (f *Fetcher) decorate(req *http.Request, referer string) {
	headers := map[string]string{
		"Accept":     f.cfg.Headers.Accept,
		"User-Agent": f.cfg.Headers.UserAgent,
		"Referer":    referer,
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	cookies := []struct {
		name  string
		value string
	}{
		{CookieTimestamperOffset, f.cfg.Cookies.TimestamperOffset},
		{f.cfg.Cookies.SessionName, f.cfg.Cookies.SessionID},
		{CookieScreenResolution, f.cfg.Cookies.ScreenResolution},
	}
	for _, c := range cookies {
		if c.name == "" || c.value == "" {
			continue
		}
		req.AddCookie(&http.Cookie{Name: c.name, Value: c.value})
	}
}

func errorResult(target models.FetchTarget, typ models.ErrorType, err error) models.FetchResult {
	return models.FetchResult{
		Target: target,
		Status: models.FetchError,
		Error: &models.ItemError{
			Type:    typ,
			Message: err.Error(),
		},
	}
}

// maxBytesReader fails once more than remaining bytes have been read.
type maxBytesReader struct {
	r         io.Reader
	remaining int64
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
