// Package safe reads workspace artifacts (disassembly listings, linked images)
// with size and file-type checks, so a wrong path cannot pull a device node or a
// multi-gigabyte file into memory.
package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the default maximum file size for ReadFile (64MB).
const DefaultMaxFileSize = 64 << 20

// ErrTooLarge is returned when a file exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds maximum allowed size")

// ReadOptions configures ReadFile.
type ReadOptions struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// RejectSymlinks refuses symlinked paths. Build outputs are often symlinked, so
	// the default follows them.
	RejectSymlinks bool
}

// ReadFile reads a regular file after validating its type and size.
func ReadFile(path string, opts *ReadOptions) ([]byte, error) {
	if opts == nil {
		opts = &ReadOptions{}
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	cleanPath := filepath.Clean(path)

	info, err := os.Lstat(cleanPath)
	if err != nil {
		return nil, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if opts.RejectSymlinks {
			return nil, fmt.Errorf("file %q is a symlink", path)
		}
		info, err = os.Stat(cleanPath)
		if err != nil {
			return nil, err
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}

	if info.Size() > maxSize {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), maxSize)
	}

	// #nosec G304 -- path was validated above.
	return os.ReadFile(cleanPath)
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
