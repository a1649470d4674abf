package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spachava753/wsfetch/internal/models"
)

func TestFetchLines(t *testing.T) {
	tests := []struct {
		name string
		res  models.FetchResult
		want string
	}{
		{
			name: "ok",
			res: models.FetchResult{
				Target: models.FetchTarget{Filename: "build-123.zip"},
				Status: models.FetchOK,
			},
			want: "[OK] build-123.zip\n",
		},
		{
			name: "http status",
			res: models.FetchResult{
				Target:     models.FetchTarget{Filename: ".gitignore"},
				Status:     models.FetchHTTPStatus,
				StatusCode: 404,
			},
			want: "[404] .gitignore\n",
		},
		{
			name: "transport error",
			res: models.FetchResult{
				Target: models.FetchTarget{Filename: ".git.zip"},
				Status: models.FetchError,
				Error:  &models.ItemError{Type: models.ErrTransportFailed, Message: "connection refused"},
			},
			want: "[Error] .git.zip: connection refused\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf).Fetch(tt.res)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestExtractLines(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Extract(models.ExtractResult{Filename: ".gitignore", Rule: models.RuleCopy})
	r.Extract(models.ExtractResult{
		Filename: "build-1.zip",
		Rule:     models.RuleMainArchive,
		Error:    &models.ItemError{Type: models.ErrWrapperMissing, Message: "wrapper directory build-1 not found in archive"},
	})

	want := "[OK] .gitignore\n[Error] build-1.zip: wrapper directory build-1 not found in archive\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestHeadersAndFatal(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Job("build-123")
	r.Extracting("build-123")
	r.MissingJobList("jobs.txt")
	r.ConfigError(errors.New("Missing required environment variable: JENKINS_HOST"))

	want := "\nProcessing build-123:\n" +
		"Extracting build-123:\n" +
		"Error: Missing jobs.txt file\n" +
		"Configuration Error: Missing required environment variable: JENKINS_HOST\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Summary(&models.RunResult{
		TotalJobs:       3,
		ProcessedJobs:   2,
		SkippedJobs:     1,
		Cancelled:       true,
		FilesFetched:    5,
		BytesDownloaded: 2_000_000,
		FetchFailures:   1,
		FilesExtracted:  4,
	})

	out := buf.String()
	for _, want := range []string{"2/3 processed", "fetched 5 file(s) (2.0 MB)", "1 fetch failure(s)", "Cancelled: 1 job(s) skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
