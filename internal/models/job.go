package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultSessionCookieName is the Jenkins session cookie the server issues
// for the instance this tool was written against.
const DefaultSessionCookieName = "JSESSIONID.d1fdbf4f"

// Config is the immutable run configuration shared by the fetcher and the
// extractor. It is built once by the config package.
type Config struct {
	Host        string        `yaml:"host" toml:"host" json:"host"`
	BasePath    string        `yaml:"base_path" toml:"base_path" json:"base_path"`
	Headers     HeaderConfig  `yaml:"headers" toml:"headers" json:"headers"`
	Cookies     CookieConfig  `yaml:"cookies" toml:"cookies" json:"-"`
	DownloadDir string        `yaml:"download_dir" toml:"download_dir" json:"download_dir"`
	UnzipDir    string        `yaml:"unzip_dir" toml:"unzip_dir" json:"unzip_dir"`
	JobPrefix   string        `yaml:"job_prefix" toml:"job_prefix" json:"job_prefix"`
	StagingDir  string        `yaml:"staging_dir,omitempty" toml:"staging_dir,omitempty" json:"staging_dir,omitempty"`
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty" toml:"http_timeout,omitempty" json:"http_timeout,omitempty"`
	Limits      LimitConfig   `yaml:"limits,omitempty" toml:"limits,omitempty" json:"limits,omitempty"`
	LogLevel    string        `yaml:"log_level,omitempty" toml:"log_level,omitempty" json:"log_level,omitempty"`
}

// HeaderConfig holds the fixed request headers. Referer is set per job.
type HeaderConfig struct {
	Accept    string `yaml:"accept" toml:"accept" json:"accept"`
	UserAgent string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
}

// CookieConfig holds the cookies attached to every request.
type CookieConfig struct {
	TimestamperOffset string `yaml:"timestamper_offset" toml:"timestamper_offset"`
	SessionName       string `yaml:"session_name" toml:"session_name"`
	SessionID         string `yaml:"session_id" toml:"session_id"`
	ScreenResolution  string `yaml:"screen_resolution" toml:"screen_resolution"`
}

// LimitConfig caps download and archive entry sizes. Sizes are human
// readable ("512MiB", "2GB"); the byte fields are filled in during loading.
// Zero means unlimited.
type LimitConfig struct {
	MaxDownloadSize  string `yaml:"max_download_size,omitempty" toml:"max_download_size,omitempty" json:"max_download_size,omitempty"`
	MaxEntrySize     string `yaml:"max_entry_size,omitempty" toml:"max_entry_size,omitempty" json:"max_entry_size,omitempty"`
	MaxDownloadBytes int64  `yaml:"-" toml:"-" json:"-"`
	MaxEntryBytes    int64  `yaml:"-" toml:"-" json:"-"`
}

// Job is a single Jenkins job named in the job list.
type Job struct {
	Name string `json:"name"`
}

// JobDownloadDir returns <download_root>/<job>.
func (c Config) JobDownloadDir(job Job) string {
	return filepath.Join(c.DownloadDir, job.Name)
}

// JobTargetDir returns <unzip_root>/<job minus prefix>.
func (c Config) JobTargetDir(job Job) string {
	return filepath.Join(c.UnzipDir, TargetName(job.Name, c.JobPrefix))
}

// TargetName strips prefix from the front of name exactly once. Names that
// do not start with prefix are returned unchanged.
func TargetName(name, prefix string) string {
	return strings.TrimPrefix(name, prefix)
}

// JobResult collects everything that happened to one job.
type JobResult struct {
	Name        string          `json:"name"`
	DownloadDir string          `json:"download_dir"`
	TargetDir   string          `json:"target_dir"`
	Fetches     []FetchResult   `json:"fetches"`
	Extractions []ExtractResult `json:"extractions"`
}

// Failed reports whether any fetch or extraction of the job failed.
func (r JobResult) Failed() bool {
	for _, f := range r.Fetches {
		if f.Status != FetchOK {
			return true
		}
	}
	for _, e := range r.Extractions {
		if e.Error != nil {
			return true
		}
	}
	return false
}

// RunResult contains aggregate counts across all jobs in a run.
type RunResult struct {
	RunID            string      `json:"run_id"`
	Cancelled        bool        `json:"cancelled"`
	TotalJobs        int         `json:"total_jobs"`
	ProcessedJobs    int         `json:"processed_jobs"`
	SkippedJobs      int         `json:"skipped_jobs"`
	FilesFetched     int         `json:"files_fetched"`
	FetchFailures    int         `json:"fetch_failures"`
	FilesExtracted   int         `json:"files_extracted"`
	ExtractFailures  int         `json:"extract_failures"`
	BytesDownloaded  int64       `json:"bytes_downloaded"`
	TotalDurationSec float64     `json:"total_duration_sec"`
	StartedAt        time.Time   `json:"started_at"`
	EndedAt          time.Time   `json:"ended_at"`
	Jobs             []JobResult `json:"jobs"`
}
