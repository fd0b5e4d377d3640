// Package gcs provides a page cache backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

const contentType = "text/html; charset=utf-8"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"gcs_bucket"`
	// Prefix is prepended to every object name.
	Prefix string `mapstructure:"prefix"`
}

// PageCache stores pages as objects named <prefix>/<kind>/<name>.html.
type PageCache struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed page cache.
func New(client *storage.Client, cfg Config) (*PageCache, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &PageCache{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ObjectName returns the object name used for key.
func (c *PageCache) ObjectName(key crawler.PageKey) string {
	if c.prefix == "" {
		return key.Path()
	}
	return path.Join(c.prefix, key.Path())
}

func (c *PageCache) object(key crawler.PageKey) (*storage.ObjectHandle, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return c.client.Bucket(c.bucket).Object(c.ObjectName(key)), nil
}

// Exists reports whether the object for key is present.
func (c *PageCache) Exists(ctx context.Context, key crawler.PageKey) (bool, error) {
	obj, err := c.object(key)
	if err != nil {
		return false, err
	}
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("object attrs %s: %w", key, err)
	}
	return true, nil
}

// Read downloads the markup stored for key.
func (c *PageCache) Read(ctx context.Context, key crawler.PageKey) ([]byte, error) {
	obj, err := c.object(key)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("read %s: %w", key, crawler.ErrNotFound)
		}
		return nil, fmt.Errorf("open reader %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Write uploads markup. GCS commits an object only when the writer closes
// cleanly, so partial pages are never visible.
func (c *PageCache) Write(ctx context.Context, key crawler.PageKey, markup []byte) error {
	obj, err := c.object(key)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(markup); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
