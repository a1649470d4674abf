// Package archive unpacks zip archives onto the local filesystem.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsafePath is returned for entries that would land outside the
	// destination directory.
	ErrUnsafePath = errors.New("unsafe zip entry path")
	// ErrEntryTooLarge is returned when an entry exceeds the configured limit.
	ErrEntryTooLarge = errors.New("zip entry too large")
)

// Options configures extraction.
type Options struct {
	// MaxEntryBytes caps the uncompressed size of a single entry. Zero means
	// unlimited.
	MaxEntryBytes int64
}

// Extract unpacks every entry of the zip file at src under dest, preserving
// the entries' relative paths. Existing files are overwritten.
func Extract(src, dest string, opts Options) error {
	zr, err := openZip(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	cleanDest := filepath.Clean(dest)
	var files int
	for _, f := range zr.File {
		entry, err := sanitizeEntryName(f.Name)
		if err != nil {
			return err
		}
		if entry == "." {
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: symlink entry not allowed: %s", ErrUnsafePath, f.Name)
		}

		target := filepath.Join(cleanDest, filepath.FromSlash(entry))
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("%w: entry escapes output dir: %s", ErrUnsafePath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", entry, err)
			}
			continue
		}

		if err := extractFile(f, target, opts); err != nil {
			return fmt.Errorf("extract %s: %w", entry, err)
		}
		files++
	}

	slog.Debug("extracted zip", "archive", filepath.Base(src), "dest", dest, "files", files)
	return nil
}

func extractFile(f *zip.File, target string, opts Options) error {
	if opts.MaxEntryBytes > 0 && f.UncompressedSize64 > uint64(opts.MaxEntryBytes) {
		return ErrEntryTooLarge
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	wf, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	var r io.Reader = rc
	if opts.MaxEntryBytes > 0 {
		// The header size can lie, so bound the actual stream as well
		r = io.LimitReader(rc, opts.MaxEntryBytes+1)
	}
	n, err := io.Copy(wf, r)
	if err != nil {
		wf.Close()
		return err
	}
	if err := wf.Close(); err != nil {
		return err
	}
	if opts.MaxEntryBytes > 0 && n > opts.MaxEntryBytes {
		_ = os.Remove(target)
		return ErrEntryTooLarge
	}

	if mtime := f.Modified; !mtime.IsZero() {
		_ = os.Chtimes(target, mtime, mtime)
	}
	return nil
}

// TopLevelNames lists the distinct first path segments of the entries in the
// zip file at src, in archive order. When under is non-empty only entries
// below that directory are considered and names are taken relative to it.
func TopLevelNames(src, under string) ([]string, error) {
	zr, err := openZip(src)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	prefix := ""
	if under != "" {
		prefix = strings.TrimSuffix(under, "/") + "/"
	}

	seen := make(map[string]bool)
	var names []string
	for _, f := range zr.File {
		entry, err := sanitizeEntryName(f.Name)
		if err != nil {
			return nil, err
		}
		if prefix != "" {
			if !strings.HasPrefix(entry, prefix) {
				continue
			}
			entry = strings.TrimPrefix(entry, prefix)
		}
		first, _, _ := strings.Cut(entry, "/")
		if first == "" || first == "." || seen[first] {
			continue
		}
		seen[first] = true
		names = append(names, first)
	}
	return names, nil
}

func openZip(src string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return nil, fmt.Errorf("open zip %s: %w: %v", filepath.Base(src), ErrUnsafePath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", filepath.Base(src), err)
	}
	return zr, nil
}

// sanitizeEntryName normalizes a zip entry name to a clean slash-separated
// relative path. Whitespace is part of the name and kept as is. Entries
// naming the archive root, such as "./", come back as ".".
func sanitizeEntryName(name string) (string, error) {
	raw := strings.ReplaceAll(name, "\\", "/")
	if raw == "" {
		return "", fmt.Errorf("%w: empty entry name", ErrUnsafePath)
	}
	if strings.HasPrefix(raw, "/") || hasWindowsDrive(raw) {
		return "", fmt.Errorf("%w: absolute path: %s", ErrUnsafePath, name)
	}
	cleaned := path.Clean(raw)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path traversal: %s", ErrUnsafePath, name)
	}
	return cleaned, nil
}

func hasWindowsDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':'
}
