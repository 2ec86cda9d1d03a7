package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/photos"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"eic", "eicr", "minor-works"}, cfg.CertificateTypes())
	assert.Equal(t, 60*time.Second, cfg.RenderTimeout())
	assert.Equal(t, photos.FailExport, cfg.PhotoPolicy())

	tpl, err := cfg.Template("eic")
	require.NoError(t, err)
	assert.Equal(t, "generate-eic-pdf", tpl.Function)
	_, err = cfg.Template("pat")
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"relative base url": `render: {base_url: "functions", templates: {eic: {function: f, template_id: t}}}`,
		"no templates":      `render: {base_url: "https://x.example"}`,
		"empty function":    `render: {templates: {eic: {template_id: t}}}`,
		"bad policy":        "render: {templates: {eic: {function: f, template_id: t}}}\nexport: {photo_failure: skip}",
		"webhook url":       "render: {templates: {eic: {function: f, template_id: t}}}\nwebhooks: [{events: [export.completed]}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Len(t, cfg.Render.Templates, 3)

	_, err = Load(dir)
	assert.Error(t, err)

	doc := "render:\n  base_url: https://proj.supabase.co\n  timeout_seconds: 30\n  templates:\n    eic: {function: gen, template_id: t1}\nexport:\n  photo_failure: omit\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "certline.yml"), []byte(doc), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RenderTimeout())
	assert.Equal(t, photos.OmitPhotos, cfg.PhotoPolicy())
}

func TestLoadOptionalSurfacesInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("render: ["), 0o644))
	_, err := LoadOptional(dir)
	assert.Error(t, err)
}
