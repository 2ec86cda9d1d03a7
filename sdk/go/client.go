package certlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal certline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when the server allows the legacy header.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// PollInterval is used by WaitForExport. Defaults to one second.
	PollInterval time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, for example http://127.0.0.1:8080/v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		PollInterval: time.Second,
	}
}

// Report is the API report model (partial).
type Report struct {
	ReportID       string         `json:"report_id"`
	ReportType     string         `json:"report_type"`
	Status         string         `json:"status"`
	Form           map[string]any `json:"form"`
	PDFURL         string         `json:"pdf_url,omitempty"`
	PDFGeneratedAt string         `json:"pdf_generated_at,omitempty"`
	StoragePath    string         `json:"storage_path,omitempty"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// Completeness mirrors the section checks of a report.
type Completeness struct {
	ReportID               string   `json:"report_id"`
	HasInstallationDetails bool     `json:"has_installation_details"`
	HasDeclarations        bool     `json:"has_declarations"`
	HasInspections         bool     `json:"has_inspections"`
	HasTestResults         bool     `json:"has_test_results"`
	CanGenerate            bool     `json:"can_generate"`
	IsFullyComplete        bool     `json:"is_fully_complete"`
	Composite              string   `json:"composite"`
	Missing                []string `json:"missing"`
}

// Photo links an uploaded image to an observation.
type Photo struct {
	ID            string `json:"id"`
	ReportID      string `json:"report_id"`
	ObservationID string `json:"observation_id"`
	FilePath      string `json:"file_path"`
	CreatedAt     string `json:"created_at"`
}

// ExportAttempt tracks one export.
type ExportAttempt struct {
	ID          string `json:"id"`
	ReportID    string `json:"report_id"`
	TemplateID  string `json:"template_id,omitempty"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	Error       string `json:"error,omitempty"`
	RequestedBy string `json:"requested_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Done reports whether the attempt reached a terminal status.
func (a ExportAttempt) Done() bool {
	return a.Status == "complete" || a.Status == "error"
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ExportError is returned by WaitForExport when the attempt fails.
type ExportError struct {
	Attempt ExportAttempt
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %s", e.Attempt.ID, e.Attempt.Error)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// SaveReport upserts a report draft.
func (c *Client) SaveReport(ctx context.Context, reportID, reportType string, form map[string]any) (Report, error) {
	body := map[string]any{
		"report_type": reportType,
		"form":        form,
	}
	var resp Report
	err := c.do(ctx, http.MethodPut, "reports/"+url.PathEscape(reportID), body, &resp)
	return resp, err
}

// GetReport fetches a report by id.
func (c *Client) GetReport(ctx context.Context, reportID string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(reportID), nil, &resp)
	return resp, err
}

// Completeness evaluates which sections of a report are filled in.
func (c *Client) Completeness(ctx context.Context, reportID string) (Completeness, error) {
	var resp Completeness
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/%s/completeness", url.PathEscape(reportID)), nil, &resp)
	return resp, err
}

// AddPhoto links an already uploaded photo to an observation.
func (c *Client) AddPhoto(ctx context.Context, reportID, observationID, filePath string) (Photo, error) {
	body := map[string]any{
		"observation_id": observationID,
		"file_path":      filePath,
	}
	var resp Photo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("reports/%s/photos", url.PathEscape(reportID)), body, &resp)
	return resp, err
}

// StartExport starts generating the certificate PDF. templateID may be empty.
func (c *Client) StartExport(ctx context.Context, reportID, templateID string) (ExportAttempt, error) {
	var body any
	if templateID != "" {
		body = map[string]any{"template_id": templateID}
	}
	var resp ExportAttempt
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("reports/%s/exports", url.PathEscape(reportID)), body, &resp)
	return resp, err
}

// GetExport returns the current state of an attempt.
func (c *Client) GetExport(ctx context.Context, attemptID string) (ExportAttempt, error) {
	var resp ExportAttempt
	err := c.do(ctx, http.MethodGet, "exports/"+url.PathEscape(attemptID), nil, &resp)
	return resp, err
}

// ListExports returns attempts of a report, newest first.
func (c *Client) ListExports(ctx context.Context, reportID string) ([]ExportAttempt, error) {
	var resp []ExportAttempt
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/%s/exports", url.PathEscape(reportID)), nil, &resp)
	return resp, err
}

// WaitForExport polls an attempt until it completes, fails or ctx ends.
// A failed attempt is returned together with an *ExportError.
func (c *Client) WaitForExport(ctx context.Context, attemptID string) (ExportAttempt, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a, err := c.GetExport(ctx, attemptID)
		if err != nil {
			return a, err
		}
		if a.Done() {
			if a.Status == "error" {
				return a, &ExportError{Attempt: a}
			}
			return a, nil
		}
		select {
		case <-ctx.Done():
			return a, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Export starts an export and waits for its outcome.
func (c *Client) Export(ctx context.Context, reportID, templateID string) (ExportAttempt, error) {
	a, err := c.StartExport(ctx, reportID, templateID)
	if err != nil {
		return a, err
	}
	return c.WaitForExport(ctx, a.ID)
}

// EmailCertificate sends the generated certificate to recipient.
func (c *Client) EmailCertificate(ctx context.Context, reportID, recipient string) error {
	body := map[string]any{"recipient": recipient}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("reports/%s/email", url.PathEscape(reportID)), body, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// IsConflict reports whether err is a 409, e.g. an export already in progress.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
