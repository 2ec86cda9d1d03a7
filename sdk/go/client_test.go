package certlinesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportPollsUntilComplete(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v0/reports/r1/exports", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.Header.Get("X-Api-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eic-custom", body["template_id"])
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(ExportAttempt{ID: "a1", ReportID: "r1", Status: "preparing"})
	})
	mux.HandleFunc("GET /v0/exports/a1", func(w http.ResponseWriter, r *http.Request) {
		a := ExportAttempt{ID: "a1", ReportID: "r1", Status: "generating", Progress: 50}
		if polls.Add(1) >= 3 {
			a.Status, a.Progress, a.PDFURL = "complete", 100, "https://x/cert.pdf"
		}
		_ = json.NewEncoder(w).Encode(a)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/v0/")
	c.APIKey = "k1"
	c.PollInterval = 5 * time.Millisecond
	a, err := c.Export(context.Background(), "r1", "eic-custom")
	require.NoError(t, err)
	assert.Equal(t, "complete", a.Status)
	assert.Equal(t, "https://x/cert.pdf", a.PDFURL)
	assert.EqualValues(t, 3, polls.Load())
}

func TestWaitForExportReturnsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ExportAttempt{ID: "a1", Status: "error", Error: "PDF generation failed"})
	}))
	defer srv.Close()

	a, err := New(srv.URL).WaitForExport(context.Background(), "a1")
	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "PDF generation failed", a.Error)
}

func TestWaitForExportHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ExportAttempt{ID: "a1", Status: "generating"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c := New(srv.URL)
	c.PollInterval = 5 * time.Millisecond
	_, err := c.WaitForExport(ctx, "a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConflictAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inspector-1", r.Header.Get("X-Actor-Id"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"export_in_progress"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.ActorID = "inspector-1"
	_, err := c.StartExport(context.Background(), "r1", "")
	assert.True(t, IsConflict(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "export_in_progress")
}

func TestEventsPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		_ = json.NewEncoder(w).Encode(PaginatedEvents{Items: []Event{{ID: 41, Type: "export.completed"}}, NextCursor: "41"})
	}))
	defer srv.Close()

	page, err := New(srv.URL).EventsPage(context.Background(), 10, "42")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "41", page.NextCursor)
}
