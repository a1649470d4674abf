// Package joblist reads the newline-delimited list of Jenkins jobs to fetch.
package joblist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spachava753/wsfetch/internal/models"
)

// ErrNotFound is returned when the job list file does not exist.
var ErrNotFound = errors.New("job list not found")

// DefaultPath is the job list read when none is given.
const DefaultPath = "jobs.txt"

// Load reads the job list at path.
func Load(path string) ([]models.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("opening job list: %w", err)
	}
	defer f.Close()

	jobs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading job list %s: %w", path, err)
	}
	return jobs, nil
}

// Parse reads one job name per line. Surrounding whitespace is trimmed and
// blank lines are skipped. Order and duplicates are preserved.
func Parse(r io.Reader) ([]models.Job, error) {
	var jobs []models.Job

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		jobs = append(jobs, models.Job{Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
