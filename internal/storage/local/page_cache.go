// Package local implements a page cache on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Config captures the parameters for the local filesystem page cache.
type Config struct {
	// BaseDir is the root directory; pages live at BaseDir/<kind>/<name>.html.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// PageCache stores page markup under a base directory.
type PageCache struct {
	baseDir string
}

// New creates a filesystem page cache, creating BaseDir when missing.
func New(cfg Config) (*PageCache, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &PageCache{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Exists reports whether the page for key has been stored.
func (c *PageCache) Exists(_ context.Context, key crawler.PageKey) (bool, error) {
	full, err := c.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Read returns the stored markup, or an error wrapping crawler.ErrNotFound.
func (c *PageCache) Read(_ context.Context, key crawler.PageKey) ([]byte, error) {
	full, err := c.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) // #nosec G304 -- path is derived from a validated key under baseDir.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", key, crawler.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write stores markup atomically: readers see either no file or the whole page.
func (c *PageCache) Write(_ context.Context, key crawler.PageKey, markup []byte) error {
	full, err := c.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(markup); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (c *PageCache) path(key crawler.PageKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	full := filepath.Clean(filepath.Join(c.baseDir, filepath.FromSlash(key.Path())))
	if !strings.HasPrefix(full, c.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
