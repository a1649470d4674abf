package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/wsfetch/internal/models"
	"github.com/spachava753/wsfetch/internal/util"
)

// Environment variable names.
const (
	EnvHost              = "JENKINS_HOST"
	EnvBasePath          = "JENKINS_BASE_PATH"
	EnvHeaderAccept      = "HEADER_ACCEPT"
	EnvHeaderUserAgent   = "HEADER_USER_AGENT"
	EnvCookieTimestamper = "COOKIE_TIMESTAMPER_OFFSET"
	EnvCookieSession     = "COOKIE_JSESSIONID"
	EnvCookieSessionName = "COOKIE_JSESSIONID_NAME"
	EnvCookieScreenRes   = "COOKIE_SCREENRESOLUTION"
	EnvDownloadDir       = "DOWNLOAD_DIR"
	EnvUnzipDir          = "UNZIP_DIR"
	EnvJobPrefix         = "ENV_JOB_PREFIX"
	EnvStagingDir        = "STAGING_DIR"
	EnvHTTPTimeout       = "HTTP_TIMEOUT"
	EnvMaxDownloadSize   = "MAX_DOWNLOAD_SIZE"
	EnvMaxEntrySize      = "MAX_ENTRY_SIZE"
	EnvLogLevel          = "LOG_LEVEL"
)

// MissingError reports a required setting that has no value.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("Missing required environment variable: %s", e.Name)
}

// LookupFunc resolves an environment variable. It matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Options controls where configuration is read from.
type Options struct {
	// ConfigPath is an optional YAML or TOML file read before the environment.
	ConfigPath string
	// EnvFile is an explicit .env file. When empty, a .env in WorkDir or one
	// of its parents is used if present.
	EnvFile string
	// WorkDir anchors relative download and unzip roots. Defaults to the
	// process working directory.
	WorkDir string
	// Lookup defaults to os.LookupEnv.
	Lookup LookupFunc
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() models.Config {
	return models.Config{
		DownloadDir: "downloads",
		UnzipDir:    "workspace",
		Cookies: models.CookieConfig{
			SessionName: models.DefaultSessionCookieName,
		},
	}
}

// Load builds the run configuration from defaults, an optional config file,
// a .env file and the process environment, in increasing precedence, then
// validates it.
func Load(opts Options) (models.Config, error) {
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return models.Config{}, fmt.Errorf("getting working directory: %w", err)
		}
		opts.WorkDir = wd
	}

	cfg := DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = LoadFile(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}

	lookup := opts.Lookup
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = FindDotEnv(opts.WorkDir)
	}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil {
			return cfg, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
		lookup = withFallback(opts.Lookup, values)
	}

	if err := ApplyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	cfg.DownloadDir = resolve(opts.WorkDir, cfg.DownloadDir)
	cfg.UnzipDir = resolve(opts.WorkDir, cfg.UnzipDir)
	if cfg.StagingDir != "" {
		cfg.StagingDir = resolve(opts.WorkDir, cfg.StagingDir)
	}

	if err := ValidateStaging(cfg, opts.WorkDir); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) config file on top of
// the defaults.
func LoadFile(path string) (models.Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config file type %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}

	// Keep defaults for values the file blanked out
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	if cfg.UnzipDir == "" {
		cfg.UnzipDir = "workspace"
	}
	if cfg.Cookies.SessionName == "" {
		cfg.Cookies.SessionName = models.DefaultSessionCookieName
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with every variable that lookup resolves to a
// non-empty value, then parses the size and duration settings.
func ApplyEnv(cfg *models.Config, lookup LookupFunc) error {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&cfg.Host, EnvHost)
	set(&cfg.BasePath, EnvBasePath)
	set(&cfg.Headers.Accept, EnvHeaderAccept)
	set(&cfg.Headers.UserAgent, EnvHeaderUserAgent)
	set(&cfg.Cookies.TimestamperOffset, EnvCookieTimestamper)
	set(&cfg.Cookies.SessionID, EnvCookieSession)
	set(&cfg.Cookies.SessionName, EnvCookieSessionName)
	set(&cfg.Cookies.ScreenResolution, EnvCookieScreenRes)
	set(&cfg.DownloadDir, EnvDownloadDir)
	set(&cfg.UnzipDir, EnvUnzipDir)
	set(&cfg.JobPrefix, EnvJobPrefix)
	set(&cfg.StagingDir, EnvStagingDir)
	set(&cfg.Limits.MaxDownloadSize, EnvMaxDownloadSize)
	set(&cfg.Limits.MaxEntrySize, EnvMaxEntrySize)
	set(&cfg.LogLevel, EnvLogLevel)

	if v, ok := lookup(EnvHTTPTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", EnvHTTPTimeout, v, err)
		}
		cfg.HTTPTimeout = d
	}

	var err error
	if cfg.Limits.MaxDownloadBytes, err = util.ParseSize(cfg.Limits.MaxDownloadSize); err != nil {
		return fmt.Errorf("parsing max download size: %w", err)
	}
	if cfg.Limits.MaxEntryBytes, err = util.ParseSize(cfg.Limits.MaxEntrySize); err != nil {
		return fmt.Errorf("parsing max entry size: %w", err)
	}

	return nil
}

// Validate checks that the required settings are present.
func Validate(cfg models.Config) error {
	required := []struct {
		name  string
		value string
	}{
		{EnvHost, cfg.Host},
		{EnvBasePath, cfg.BasePath},
		{EnvCookieSession, cfg.Cookies.SessionID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &MissingError{Name: r.name}
		}
	}

	u, err := url.Parse(cfg.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http:// or https:// URL, got %q", EnvHost, cfg.Host)
	}

	if cfg.HTTPTimeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvHTTPTimeout)
	}

	return nil
}

// ErrStagingOverlap is returned when the staging directory would share a
// tree with the download root, the unzip root or the working directory.
// Staging is emptied with os.RemoveAll during extraction.
var ErrStagingOverlap = errors.New("staging directory overlaps")

// ValidateStaging rejects a StagingDir that equals, contains or sits inside
// DownloadDir or UnzipDir, or that equals or contains workDir. All paths are
// expected to be absolute. An empty StagingDir is always accepted.
func ValidateStaging(cfg models.Config, workDir string) error {
	if cfg.StagingDir == "" {
		return nil
	}
	staging := filepath.Clean(cfg.StagingDir)

	roots := []struct {
		name string
		path string
	}{
		{EnvDownloadDir, cfg.DownloadDir},
		{EnvUnzipDir, cfg.UnzipDir},
	}
	for _, r := range roots {
		if r.path == "" {
			continue
		}
		if isWithin(r.path, staging) || isWithin(staging, r.path) {
			return fmt.Errorf("%s %q: %w %s %q", EnvStagingDir, staging, ErrStagingOverlap, r.name, r.path)
		}
	}
	if workDir != "" && isWithin(staging, workDir) {
		return fmt.Errorf("%s %q: %w the working directory %q", EnvStagingDir, staging, ErrStagingOverlap, workDir)
	}
	return nil
}

// isWithin reports whether p is parent or lies below it.
func isWithin(parent, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// FindDotEnv looks for a .env file in dir and up to four parent directories.
// It returns "" when none exists.
func FindDotEnv(dir string) string {
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			return envPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}

// withFallback resolves from primary first and falls back to values, so real
// environment variables win over the .env file.
func withFallback(primary LookupFunc, values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok && v != "" {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
