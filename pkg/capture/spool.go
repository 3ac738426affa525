package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideSpool is returned for a recording path outside the spool
	// directory.
	ErrOutsideSpool = errors.New("capture: recording outside spool directory")

	// ErrNoSpool is returned when no spool directory is configured.
	ErrNoSpool = errors.New("capture: no spool directory configured")
)

// Spool is where recordings live until a turn consumes them. The pipeline
// deletes every recording it is handed, so a recording named over the
// network must resolve to a file inside Dir.
type Spool struct {
	// Dir holds inline recordings and bounds path recordings. Empty refuses
	// both.
	Dir string
}

// Prepare creates the spool directory if it does not exist.
func (s Spool) Prepare() error {
	if s.Dir == "" {
		return ErrNoSpool
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("capture: create spool dir: %w", err)
	}
	return nil
}

// Accept validates a recording path named by the capture side and returns
// it with symlinks resolved. The recording must already exist.
func (s Spool) Accept(path string) (string, error) {
	if path == "" {
		return "", errors.New("capture: empty recording path")
	}
	if s.Dir == "" {
		return "", ErrNoSpool
	}
	root, err := resolve(s.Dir)
	if err != nil {
		return "", fmt.Errorf("capture: resolve spool dir: %w", err)
	}
	target, err := resolve(path)
	if err != nil {
		return "", fmt.Errorf("capture: resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideSpool, path)
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("capture: %s is not a regular file", path)
	}
	return target, nil
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Write stores an inline recording and returns its path.
func (s Spool) Write(wav []byte) (string, error) {
	if s.Dir == "" {
		return "", ErrNoSpool
	}
	f, err := os.CreateTemp(s.Dir, "utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("capture: create recording: %w", err)
	}
	if _, err := f.Write(wav); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("capture: write recording: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("capture: close recording: %w", err)
	}
	return f.Name(), nil
}
