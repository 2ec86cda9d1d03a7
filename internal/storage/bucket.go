// Package storage addresses objects in the public storage buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Bucket builds public object URLs of the form {base}/{bucket}/{path}.
type Bucket struct {
	PublicBaseURL string
	Name          string
}

// PublicURL returns the durable URL for an object path.
func (b Bucket) PublicURL(filePath string) (string, error) {
	clean := strings.TrimLeft(strings.TrimSpace(filePath), "/")
	if clean == "" {
		return "", errors.New("file path required")
	}
	if strings.TrimSpace(b.PublicBaseURL) == "" {
		return "", errors.New("storage public base url not configured")
	}
	if strings.HasPrefix(clean, "http://") || strings.HasPrefix(clean, "https://") {
		return clean, nil
	}
	segments := strings.Split(path.Clean(clean), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	base := strings.TrimRight(b.PublicBaseURL, "/")
	if b.Name != "" {
		base += "/" + url.PathEscape(b.Name)
	}
	return base + "/" + strings.Join(segments, "/"), nil
}

// Archive keeps permanent copies of rendered certificates under Root,
// mirroring the layout of the public bucket.
type Archive struct {
	Root   string
	Bucket Bucket
}

// Put writes data under key and returns the storage path and its public URL.
// A public URL is only returned when the bucket has a base URL.
func (a Archive) Put(_ context.Context, key string, data []byte) (string, string, error) {
	if strings.TrimSpace(a.Root) == "" {
		return "", "", errors.New("archive root not configured")
	}
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", "", errors.New("archive key required")
	}
	dest := filepath.Join(a.Root, a.Bucket.Name, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", "", fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*")
	if err != nil {
		return "", "", fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", "", fmt.Errorf("commit archive file: %w", err)
	}
	var public string
	if a.Bucket.PublicBaseURL != "" {
		public, _ = a.Bucket.PublicURL(key)
	}
	return key, public, nil
}
