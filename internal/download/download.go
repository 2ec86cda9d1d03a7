// Package download saves rendered certificates to the local filesystem.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds {type}-{number}-{client}-{YYYY-MM-DD}.pdf, substituting
// "draft" and "client" for missing parts.
func Filename(certType, certNumber, clientName string, date time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s.pdf",
		part(certType, "certificate"),
		part(certNumber, "draft"),
		part(clientName, "client"),
		date.Format("2006-01-02"),
	)
}

func part(v, fallback string) string {
	v = strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(v), "_"), "_")
	if v == "" {
		return fallback
	}
	return v
}

// Downloader fetches a PDF and stores it under Dir.
type Downloader struct {
	Dir      string
	HTTP     *http.Client
	MaxBytes int64
}

const defaultMaxBytes = 50 << 20

// Save downloads url into Dir/name and returns the saved path and bytes.
// The temporary file is removed whether or not the save succeeds.
func (d Downloader) Save(ctx context.Context, url, name string) (string, []byte, error) {
	if strings.TrimSpace(url) == "" {
		return "", nil, errors.New("download url required")
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create download dir: %w", err)
	}
	data, err := d.fetch(ctx, url)
	if err != nil {
		return "", nil, err
	}
	tmp, err := os.CreateTemp(dir, ".certline-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", nil, err
	}
	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", nil, fmt.Errorf("save %s: %w", dest, err)
	}
	return dest, data, nil
}

func (d Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch pdf: status %d", res.StatusCode)
	}
	limit := d.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("pdf exceeds %d bytes", limit)
	}
	return data, nil
}
