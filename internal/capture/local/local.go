package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbonduro/unlabel/internal/capture"
)

// Store picks capture candidates from, and archives confirmed captures to, a
// single directory. Names given to Open may be absolute; relative names are
// resolved under the base directory and may not escape it.
type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Open returns a candidate for name with its media type declared from the
// extension. The caller must close the returned closer once the candidate
// has been consumed.
func (s *Store) Open(ctx context.Context, name string) (capture.Candidate, io.Closer, error) {
	filePath := name
	if !filepath.IsAbs(name) {
		var err error
		if filePath, err = s.safeJoin(name); err != nil {
			return capture.Candidate{}, nil, err
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return capture.Candidate{}, nil, fmt.Errorf("file not found: %s", name)
		}
		return capture.Candidate{}, nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		closeWithLog(f)
		return capture.Candidate{}, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		closeWithLog(f)
		return capture.Candidate{}, nil, fmt.Errorf("%s is a directory", name)
	}

	return capture.Candidate{
		Name:      filepath.Base(filePath),
		MediaType: capture.MediaTypeFromName(filePath),
		Size:      info.Size(),
		Body:      f,
	}, f, nil
}

// Save writes a confirmed capture under the base directory and returns its
// path.
func (s *Store) Save(ctx context.Context, file capture.File) (string, error) {
	filePath, err := s.safeJoin(filepath.Base(file.Name))
	if err != nil {
		return "", err
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(file.Data); err != nil {
		closeWithLog(f)
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return filePath, nil
}

// safeJoin resolves name relative to basePath and rejects directory traversal.
func (s *Store) safeJoin(name string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func closeWithLog(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Error("failed to close file", "error", err)
	}
}
