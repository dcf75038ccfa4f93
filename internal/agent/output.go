package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilenameLayout is the UTC timestamp layout used in output names.
const FilenameLayout = "2006-01-02T15-04-05"

// Filename names an output written at t.
func Filename(t time.Time) string {
	return "screenshot_" + t.UTC().Format(FilenameLayout) + ".png"
}

// Output stores a finished image and returns where it went.
type Output interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DirOutput writes files into a directory, creating it when needed. An
// existing file is never replaced: a name already taken gets a _1, _2, ...
// suffix before the extension.
type DirOutput struct {
	Dir string
}

// maxNameSuffix bounds the search for a free name.
const maxNameSuffix = 1000

func (d DirOutput) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i <= maxNameSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		if _, err := file.Write(data); err != nil {
			file.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to find a free name for %s in %s", name, dir)
}

// FileOutput writes to one fixed path regardless of the generated name,
// replacing any file already there.
type FileOutput struct {
	Path string
}

func (f FileOutput) Save(ctx context.Context, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	return f.Path, nil
}
