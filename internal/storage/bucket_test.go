package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketPublicURL(t *testing.T) {
	b := Bucket{PublicBaseURL: "https://x.supabase.co/storage/v1/object/public/", Name: "inspection-photos"}

	u, err := b.PublicURL("rep-1/obs a/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co/storage/v1/object/public/inspection-photos/rep-1/obs%20a/photo.jpg", u)

	u, err = b.PublicURL("https://elsewhere/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere/p.jpg", u)

	_, err = b.PublicURL("  ")
	assert.Error(t, err)

	_, err = Bucket{}.PublicURL("a.jpg")
	assert.Error(t, err)
}

func TestArchivePut(t *testing.T) {
	root := t.TempDir()
	a := Archive{Root: root, Bucket: Bucket{PublicBaseURL: "https://cdn.example", Name: "certificates"}}

	key, public, err := a.Put(context.Background(), "../rep-1/eic.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "rep-1/eic.pdf", key)
	assert.Equal(t, "https://cdn.example/certificates/rep-1/eic.pdf", public)

	data, err := os.ReadFile(filepath.Join(root, "certificates", "rep-1", "eic.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "certificates", "rep-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must be cleaned up")
}

func TestArchiveRequiresRoot(t *testing.T) {
	_, _, err := Archive{}.Put(context.Background(), "k.pdf", nil)
	assert.Error(t, err)
}
