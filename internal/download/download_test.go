package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	day := time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "eic-EIC-001-Acme_Ltd-2024-05-06.pdf", Filename("eic", "EIC-001", "Acme Ltd", day))
	assert.Equal(t, "eicr-draft-client-2024-05-06.pdf", Filename("eicr", "", "  ", day))
	assert.Equal(t, "minor-works-A_B-J_Smith-2024-05-06.pdf", Filename("minor-works", "A/B", "J. Smith", day))
}

func TestSaveWritesFileAndCleansTemp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7 body"))
	}))
	defer srv.Close()
	dir := t.TempDir()

	path, data, err := Downloader{Dir: dir}.Save(context.Background(), srv.URL+"/x.pdf", "cert.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cert.pdf"), path)
	assert.Equal(t, "%PDF-1.7 body", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cert.pdf", entries[0].Name())
}

func TestSaveFailureLeavesNoFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	dir := t.TempDir()

	_, _, err := Downloader{Dir: dir}.Save(context.Background(), srv.URL, "cert.pdf")
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestSaveRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()
	_, _, err := Downloader{Dir: t.TempDir(), MaxBytes: 16}.Save(context.Background(), srv.URL, "c.pdf")
	assert.Error(t, err)
}
