package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePDFPostsDocument(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"pdfUrl":"https://files/x.pdf","documentId":"doc-1","expiresAt":"2024-04-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL + "/", APIKey: "secret"}
	resp, err := c.GeneratePDF(context.Background(), "generate-eic-pdf", GenerateRequest{
		FormData:   map[string]string{"k": "v"},
		TemplateID: "tpl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/functions/v1/generate-eic-pdf", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "tpl-1", gotBody["templateId"])
	assert.Equal(t, map[string]any{"k": "v"}, gotBody["formData"])
	assert.Equal(t, "https://files/x.pdf", resp.PDFURL)
	assert.Equal(t, "doc-1", resp.DocumentID)
}

func TestGenerateResponseURLAliases(t *testing.T) {
	cases := map[string]string{
		`{"success":true,"pdfUrl":"a"}`:          "a",
		`{"success":true,"pdf_url":"b"}`:         "b",
		`{"success":true,"url":"c"}`:             "c",
		`{"success":true,"downloadUrl":"d"}`:     "d",
		`{"data":{"success":true,"pdfUrl":"e"}}`: "e",
	}
	for body, want := range cases {
		var resp GenerateResponse
		require.NoError(t, json.Unmarshal([]byte(body), &resp))
		assert.Equal(t, want, resp.PDFURL, body)
		assert.True(t, resp.Success, body)
	}
}

func TestGenerateResponseNestedData(t *testing.T) {
	var resp GenerateResponse
	body := `{"success":true,"data":{"pdfUrl":"https://f/x.pdf","documentId":"doc-9","expiresAt":"2024-04-01T00:00:00Z"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "https://f/x.pdf", resp.PDFURL)
	assert.Equal(t, "doc-9", resp.DocumentID)
	assert.Equal(t, "2024-04-01T00:00:00Z", resp.ExpiresAt)
}

func TestGeneratePDFFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusBadGateway,
			body:   `{"error":"template missing"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusBadGateway, se.Status)
				assert.Equal(t, "template missing", se.Body)
			},
		},
		{
			name:   "success false",
			status: http.StatusOK,
			body:   `{"success":false,"error":"bad payload"}`,
			check: func(t *testing.T, err error) {
				var fe *FailureError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "bad payload", fe.Message)
			},
		},
		{
			name:   "success false without message",
			status: http.StatusOK,
			body:   `{"success":false}`,
			check: func(t *testing.T, err error) {
				var fe *FailureError
				require.ErrorAs(t, err, &fe)
				assert.Empty(t, fe.Message)
				assert.Equal(t, "render service reported failure", fe.Error())
			},
		},
		{
			name:   "missing url",
			status: http.StatusOK,
			body:   `{"success":true}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrNoPDF))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			_, err := Client{BaseURL: srv.URL}.GeneratePDF(context.Background(), "fn", GenerateRequest{})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestGeneratePDFRequiresBaseURL(t *testing.T) {
	_, err := Client{}.GeneratePDF(context.Background(), "fn", GenerateRequest{})
	assert.Error(t, err)
}

func TestSendEmail(t *testing.T) {
	var got EmailRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	err := Client{BaseURL: srv.URL}.SendEmail(context.Background(), EmailRequest{ReportID: "r1", Recipient: "a@b.c", PDFURL: "https://f/x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/functions/v1/"+EmailFunction, path)
	assert.Equal(t, "a@b.c", got.Recipient)
}
