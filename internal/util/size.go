package util

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a size string (e.g., "2GiB", "512MB") to bytes.
// Plain units are decimal ("1K" is 1000 bytes); the "Ki", "Mi", ... forms
// are binary. A bare number is taken as bytes. If the string is empty, it
// returns 0.
func ParseSize(size string) (int64, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", size, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size value too large: %s", size)
	}
	return int64(n), nil
}
