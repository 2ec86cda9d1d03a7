package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/engine"
)

func TestResolveConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(dir, Overrides{RenderBaseURL: "https://proj.example", RenderAPIKey: "anon"})
	require.NoError(t, err)
	assert.Equal(t, "https://proj.example", cfg.Render.BaseURL)
	assert.Equal(t, "anon", cfg.Render.APIKey)

	_, err = ResolveConfig(dir, Overrides{RenderBaseURL: "not a url"})
	assert.Error(t, err)
}

func TestResolveConfigReadsExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.yml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  templates:\n    eicr: {function: f, template_id: t}\n"), 0o644))
	cfg, err := ResolveConfig(t.TempDir(), Overrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"eicr"}, cfg.CertificateTypes())
}

func TestOpenRecoversInterruptedAttempts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ws, err := Open(ctx, dir, Overrides{}, nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".certline", "certline.db"))
	assert.Len(t, ws.Config.Render.Templates, len(config.Default().Render.Templates))

	_, _, err = ws.Engine.SaveDraft(ctx, engineDraft("r1"))
	require.NoError(t, err)
	tx, err := ws.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Engine.Repo.InsertAttempt(ctx, tx, domain.ExportAttempt{
		ID: "a1", ReportID: "r1", Status: "generating", Progress: 50, RequestedBy: "tester",
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, ws.Close())

	ws, err = Open(ctx, dir, Overrides{}, nil)
	require.NoError(t, err)
	defer ws.Close()
	a, err := ws.Engine.GetAttempt(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "error", a.Status)
	assert.Equal(t, "export interrupted by restart", a.Error)
}

func engineDraft(id string) engine.SaveDraftOptions {
	return engine.SaveDraftOptions{ReportID: id, ReportType: "eic", FormJSON: []byte(`{}`), ActorID: "tester"}
}
