package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/migrate"
	"certline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func seedReport(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	err := r.UpsertReport(context.Background(), nil, domain.Report{
		ReportID:   id,
		ReportType: domain.CertificateEIC,
		Form:       domain.CertificateForm{ClientName: "Acme"},
		CreatedBy:  "tester",
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
}

func TestReportUpsertIsLastWriteWins(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedReport(t, r, "rep-1")

	require.NoError(t, r.SaveArtifact(ctx, "rep-1", domain.Artifact{PDFURL: "https://x/y.pdf", GeneratedAt: "2024-01-02T00:00:00Z", DocumentID: "d1"}, "2024-01-02T00:00:00Z"))

	err := r.UpsertReport(ctx, nil, domain.Report{
		ReportID:   "rep-1",
		ReportType: domain.CertificateEIC,
		Form:       domain.CertificateForm{ClientName: "Beta"},
		CreatedBy:  "other",
		CreatedAt:  "2024-01-03T00:00:00Z",
		UpdatedAt:  "2024-01-03T00:00:00Z",
	})
	require.NoError(t, err)

	got, err := r.GetReport(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "Beta", got.Form.ClientName)
	assert.Equal(t, "tester", got.CreatedBy, "creator is kept")
	assert.Equal(t, "https://x/y.pdf", got.PDFURL, "artifact survives a draft save")
	assert.Equal(t, "d1", got.PDFDocumentID)
	assert.Equal(t, "draft", got.Status)
}

func TestSaveArtifactKeepsOptionalFields(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedReport(t, r, "rep-1")

	require.NoError(t, r.SaveArtifact(ctx, "rep-1", domain.Artifact{PDFURL: "u1", GeneratedAt: "t1", DocumentID: "d1", ExpiresAt: "e1"}, "t1"))
	require.NoError(t, r.SaveArtifact(ctx, "rep-1", domain.Artifact{PDFURL: "u1", GeneratedAt: "t1", StoragePath: "rep-1/x.pdf"}, "t2"))

	got, err := r.GetReport(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.PDFDocumentID)
	assert.Equal(t, "e1", got.PDFExpiresAt)
	assert.Equal(t, "rep-1/x.pdf", got.StoragePath)
	assert.Equal(t, "completed", got.Status)

	err = r.SaveArtifact(ctx, "missing", domain.Artifact{PDFURL: "u"}, "t")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGetReportNotFound(t *testing.T) {
	r := newRepo(t)
	_, err := r.GetReport(context.Background(), "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListReportsFilters(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedReport(t, r, "rep-1")
	require.NoError(t, r.UpsertReport(ctx, nil, domain.Report{ReportID: "rep-2", ReportType: domain.CertificateEICR, CreatedBy: "t", CreatedAt: "2024-01-02T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z"}))

	all, err := r.ListReports(ctx, repo.ReportFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "rep-2", all[0].ReportID)

	eicr, err := r.ListReports(ctx, repo.ReportFilters{ReportType: domain.CertificateEICR})
	require.NoError(t, err)
	require.Len(t, eicr, 1)
	assert.Equal(t, "rep-2", eicr[0].ReportID)
}

func TestPhotosByReportAndType(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedReport(t, r, "rep-1")
	for i, obs := range []string{"a", "a", "b"} {
		require.NoError(t, r.InsertPhoto(ctx, nil, domain.PhotoRecord{
			ID: string(rune('1' + i)), ReportID: "rep-1", ReportType: "eic", ObservationID: obs,
			FilePath: "rep-1/" + obs, CreatedAt: "2024-01-01T00:00:00Z",
		}))
	}
	got, err := r.ListPhotos(ctx, "rep-1", "eic")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[2].ID)

	none, err := r.ListPhotos(ctx, "rep-1", "eicr")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAttemptLifecycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedReport(t, r, "rep-1")
	a := domain.ExportAttempt{ID: "att-1", ReportID: "rep-1", Status: "preparing", RequestedBy: "t", CreatedAt: "t0", UpdatedAt: "t0"}
	require.NoError(t, r.InsertAttempt(ctx, nil, a))

	a.Status = "complete"
	a.Progress = 100
	a.PDFURL = "https://x/y.pdf"
	a.UpdatedAt = "t1"
	require.NoError(t, r.UpdateAttempt(ctx, a))

	got, err := r.GetAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.True(t, got.Terminal())

	require.NoError(t, r.InsertAttempt(ctx, nil, domain.ExportAttempt{ID: "att-2", ReportID: "rep-1", Status: "generating", RequestedBy: "t", CreatedAt: "t2", UpdatedAt: "t2"}))
	n, err := r.FailStaleAttempts(ctx, "interrupted", "t3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := r.ListAttempts(ctx, "rep-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "att-2", list[0].ID)
	assert.Equal(t, "error", list[0].Status)
	assert.Equal(t, "interrupted", list[0].Error)
}

func TestEventsCursor(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for _, typ := range []string{"report.saved", "export.started", "export.completed"} {
		_, err := r.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES ('t',?,'report','rep-1','a','{}')`, typ)
		require.NoError(t, err)
	}
	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, latest)

	after, err := r.EventsAfter(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "export.started", after[0].Type)

	filtered, err := r.LatestEvents(ctx, repo.EventFilters{Type: "export.completed"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "rep-1", filtered[0].EntityID)
}

func TestSaveArtifactPropagatesDBError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	mock.ExpectExec("UPDATE reports SET pdf_url").WillReturnError(errors.New("database is locked"))

	err = repo.Repo{DB: conn}.SaveArtifact(context.Background(), "rep-1", domain.Artifact{PDFURL: "u"}, "t")
	assert.EqualError(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPhotosPropagatesQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	mock.ExpectQuery("SELECT id,report_id,report_type,observation_id").
		WithArgs("rep-1", "eic").
		WillReturnError(errors.New("connection reset"))

	_, err = repo.Repo{DB: conn}.ListPhotos(context.Background(), "rep-1", "eic")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey(" secret ")
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "inspector-1", KeyHash: hash}))
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	require.NoError(t, err)
	assert.Equal(t, "inspector-1", got.ActorID)
	assert.Empty(t, got.LastUsedAt)

	require.NoError(t, r.TouchAPIKey(ctx, "k1", "2024-03-05T10:00:00Z"))
	keys, err := r.ListAPIKeys(ctx, "inspector-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "2024-03-05T10:00:00Z", keys[0].LastUsedAt)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
}
