package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/engine"
	"certline/internal/export"
	"certline/internal/migrate"
	"certline/internal/repo"
)

const completeFormJSON = `{
	"certificateNumber": "EIC-001",
	"clientName": "J Smith",
	"installationAddress": "1 Test St",
	"installationDate": "2024-01-01",
	"designerName": "D Designer",
	"designerSignature": "sig-d",
	"constructorName": "C Builder",
	"constructorSignature": "sig-c",
	"inspectorName": "I Inspector",
	"inspectorSignature": "sig-i",
	"inspections": {"1.1": {"outcome": "acceptable"}},
	"scheduleOfTests": [{"circuitNumber": "1", "circuitDescription": "Lights"}]
}`

type renderStub struct {
	srv     *httptest.Server
	calls   atomic.Int32
	emails  atomic.Int32
	release chan struct{}
	fail    string

	mu       sync.Mutex
	lastBody map[string]any
}

func (s *renderStub) body() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

func newRenderStub(t *testing.T) *renderStub {
	t.Helper()
	stub := &renderStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/functions/v1/generate-eic-pdf", func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.mu.Lock()
		stub.lastBody = body
		stub.mu.Unlock()
		if stub.release != nil {
			<-stub.release
		}
		if stub.fail != "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": stub.fail})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"pdfUrl":     stub.srv.URL + "/files/cert.pdf",
			"documentId": "doc-1",
		})
	})
	mux.HandleFunc("/functions/v1/send-certificate-email", func(w http.ResponseWriter, r *http.Request) {
		stub.emails.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/files/cert.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 test"))
	})
	stub.srv = httptest.NewServer(mux)
	t.Cleanup(stub.srv.Close)
	return stub
}

type testEnv struct {
	Engine engine.Engine
	Render *renderStub
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	stub := newRenderStub(t)
	cfg := config.Default()
	cfg.Render.BaseURL = stub.srv.URL
	cfg.Storage.PublicBaseURL = "https://proj.example/storage/v1/object/public"
	cfg.Storage.ArchiveDir = "archive"
	eng := engine.New(conn, cfg, dir)
	eng.Now = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Render: stub, Ctx: context.Background()}
}

func (env testEnv) saveComplete(t *testing.T, id string) {
	t.Helper()
	_, _, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{
		ReportID:   id,
		ReportType: "eic",
		FormJSON:   []byte(completeFormJSON),
		ActorID:    "tester",
	})
	require.NoError(t, err)
}

func TestSaveDraftWarnsOnUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	rep, warnings, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{
		ReportType: "eic",
		FormJSON:   []byte(`{"clientName":"A","legacyField":1}`),
		ActorID:    "tester",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.ReportID)
	assert.Equal(t, "draft", rep.Status)
	assert.Equal(t, "A", rep.Form.ClientName)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "legacyField")

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: rep.ReportID})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "report.saved", evts[0].Type)
}

func TestSaveDraftRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	var inputErr *engine.InputError
	_, _, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{ReportType: "pat", FormJSON: []byte(`{}`), ActorID: "tester"})
	assert.ErrorAs(t, err, &inputErr)
	_, _, err = env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{ReportType: "eic", FormJSON: []byte(`{`), ActorID: "tester"})
	assert.ErrorAs(t, err, &inputErr)
	_, _, err = env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{ReportType: "eic", FormJSON: []byte(`{}`)})
	assert.ErrorAs(t, err, &inputErr)
}

func TestCompleteness(t *testing.T) {
	env := newTestEnv(t)
	rep, _, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{
		ReportType: "eic",
		FormJSON:   []byte(`{"clientName":"J Smith"}`),
		ActorID:    "tester",
	})
	require.NoError(t, err)
	st, err := env.Engine.Completeness(env.Ctx, rep.ReportID)
	require.NoError(t, err)
	assert.False(t, st.CanGenerate)
	assert.Contains(t, st.Missing, "installation address")

	env.saveComplete(t, rep.ReportID)
	st, err = env.Engine.Completeness(env.Ctx, rep.ReportID)
	require.NoError(t, err)
	assert.True(t, st.CanGenerate)

	_, err = env.Engine.Completeness(env.Ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestPhotosAndPreview(t *testing.T) {
	env := newTestEnv(t)
	form := `{"clientName":"J Smith","observations":[{"id":"obs-1","item":"4.4","description":"Loose cover","code":"C2"}]}`
	rep, _, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{ReportType: "eic", FormJSON: []byte(form), ActorID: "tester"})
	require.NoError(t, err)

	_, err = env.Engine.AddPhoto(env.Ctx, rep.ReportID, "", "a.jpg", "tester")
	var inputErr *engine.InputError
	assert.ErrorAs(t, err, &inputErr)

	_, err = env.Engine.AddPhoto(env.Ctx, rep.ReportID, "obs-1", "reports/r1/a.jpg", "tester")
	require.NoError(t, err)
	list, err := env.Engine.ListPhotos(env.Ctx, rep.ReportID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	out, err := env.Engine.Preview(env.Ctx, rep.ReportID)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	obs := doc["observations"].([]any)
	require.Len(t, obs, 1)
	first := obs[0].(map[string]any)
	assert.EqualValues(t, 1, first["photo_count"])
	assert.Contains(t, first["photo_evidence"].([]any)[0], "/reports/r1/a.jpg")
}

func TestRunExportCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")
	rec := &export.Recorder{}

	attempt, res, err := env.Engine.RunExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"}, rec)
	require.NoError(t, err)
	assert.Equal(t, "complete", attempt.Status)
	assert.Equal(t, 100, attempt.Progress)
	assert.Equal(t, "https://proj.example/storage/v1/object/public/certificates/r1/eic-EIC-001-J_Smith-2024-03-05.pdf", attempt.PDFURL, "archived copy replaces the signed url")
	assert.Equal(t, "doc-1", attempt.DocumentID)
	assert.Equal(t, export.StageComplete, rec.Latest().Stage)

	data, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))
	assert.Equal(t, "eic-EIC-001-J_Smith-2024-03-05.pdf", res.Filename)

	body := env.Render.body()
	assert.Equal(t, "eic-standard", body["templateId"])
	formData := body["formData"].(map[string]any)
	assert.Equal(t, "J Smith", formData["client_details"].(map[string]any)["client_name"])

	rep, err := env.Engine.GetReport(env.Ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "completed", rep.Status)
	assert.Equal(t, attempt.PDFURL, rep.PDFURL)
	assert.Equal(t, "r1/"+res.Filename, rep.StoragePath)

	stored, err := env.Engine.GetAttempt(env.Ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.Status, stored.Status)
	assert.Equal(t, res.FilePath, stored.FilePath)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityID: "r1", Type: "export.completed"})
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestRunExportRecordsRenderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")
	env.Render.fail = "template not found"

	attempt, _, err := env.Engine.RunExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"}, nil)
	require.Error(t, err)
	assert.Equal(t, "error", attempt.Status)
	assert.Equal(t, "template not found", attempt.Error)

	rep, err := env.Engine.GetReport(env.Ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "draft", rep.Status)
	assert.Empty(t, rep.PDFURL)

	list, err := env.Engine.ListAttempts(env.Ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "error", list[0].Status)
}

func TestExportRejectsIncompleteReport(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.SaveDraft(env.Ctx, engine.SaveDraftOptions{
		ReportID: "r1", ReportType: "eic", FormJSON: []byte(`{"clientName":"J"}`), ActorID: "tester",
	})
	require.NoError(t, err)

	_, err = env.Engine.StartExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	var verr *export.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "installation address")
	assert.EqualValues(t, 0, env.Render.calls.Load())

	list, err := env.Engine.ListAttempts(env.Ctx, "r1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStartExportGuardsConcurrentRuns(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")
	env.Render.release = make(chan struct{})

	first, err := env.Engine.StartExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, "preparing", first.Status)

	_, err = env.Engine.StartExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	assert.ErrorIs(t, err, export.ErrExportInProgress)

	close(env.Render.release)
	env.Engine.Wait()

	done, err := env.Engine.GetAttempt(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "complete", done.Status)
	assert.EqualValues(t, 1, env.Render.calls.Load())

	_, err = env.Engine.StartExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	require.NoError(t, err)
	env.Engine.Wait()
}

func TestStartExportOutlivesCaller(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")
	ctx, cancel := context.WithCancel(env.Ctx)
	attempt, err := env.Engine.StartExport(ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	require.NoError(t, err)
	cancel()
	env.Engine.Wait()

	done, err := env.Engine.GetAttempt(env.Ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, "complete", done.Status)
}

func TestEmailCertificate(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")

	err := env.Engine.EmailCertificate(env.Ctx, "r1", "client@example.com", "tester")
	assert.ErrorIs(t, err, engine.ErrNoCertificate)

	_, _, err = env.Engine.RunExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"}, nil)
	require.NoError(t, err)

	var inputErr *engine.InputError
	assert.ErrorAs(t, env.Engine.EmailCertificate(env.Ctx, "r1", "nobody", "tester"), &inputErr)

	require.NoError(t, env.Engine.EmailCertificate(env.Ctx, "r1", "client@example.com", "tester"))
	assert.EqualValues(t, 1, env.Render.emails.Load())
}

func TestRecoverAttemptsFailsStaleRows(t *testing.T) {
	env := newTestEnv(t)
	env.saveComplete(t, "r1")
	env.Render.release = make(chan struct{})
	attempt, err := env.Engine.StartExport(env.Ctx, engine.ExportOptions{ReportID: "r1", ActorID: "tester"})
	require.NoError(t, err)

	n, err := env.Engine.RecoverAttempts(env.Ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	stale, err := env.Engine.GetAttempt(env.Ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", stale.Status)

	close(env.Render.release)
	env.Engine.Wait()
	if _, err := env.Engine.GetAttempt(env.Ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "inspector-1", "tablet")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, "cl_"))
	assert.NotEqual(t, secret, key.KeyHash)

	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)

	keys, err := env.Engine.ListAPIKeys(env.Ctx, "inspector-1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID))
	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID), repo.ErrNotFound)
}
