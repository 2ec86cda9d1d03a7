// Package render invokes the remote serverless functions that turn a
// certificate document into a PDF and email it.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// EmailFunction is the function that mails a generated certificate.
	EmailFunction = "send-certificate-email"

	defaultHTTPTimeout = 90 * time.Second
	maxErrorBody       = 4096
)

// Client calls functions at {BaseURL}/functions/v1/{name}.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// GenerateRequest is the body sent to a PDF generation function.
type GenerateRequest struct {
	FormData   any    `json:"formData"`
	TemplateID string `json:"templateId"`
}

// GenerateResponse is the render function reply. The URL may arrive under
// any of the keys the deployed functions have used.
type GenerateResponse struct {
	Success    bool   `json:"success"`
	PDFURL     string `json:"pdfUrl"`
	DocumentID string `json:"documentId"`
	ExpiresAt  string `json:"expiresAt"`
	Error      string `json:"error"`
}

func (r *GenerateResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success     bool   `json:"success"`
		PDFURL      string `json:"pdfUrl"`
		PDFURLSnake string `json:"pdf_url"`
		URL         string `json:"url"`
		DownloadURL string `json:"downloadUrl"`
		DocumentID  string `json:"documentId"`
		ExpiresAt   string `json:"expiresAt"`
		Error       string `json:"error"`
		// Some functions wrap the result one level down.
		Data struct {
			Success    bool   `json:"success"`
			PDFURL     string `json:"pdfUrl"`
			DocumentID string `json:"documentId"`
			ExpiresAt  string `json:"expiresAt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Success = raw.Success || raw.Data.Success
	r.DocumentID = firstNonEmpty(raw.DocumentID, raw.Data.DocumentID)
	r.ExpiresAt = firstNonEmpty(raw.ExpiresAt, raw.Data.ExpiresAt)
	r.Error = raw.Error
	r.PDFURL = firstNonEmpty(raw.PDFURL, raw.PDFURLSnake, raw.URL, raw.DownloadURL, raw.Data.PDFURL)
	return nil
}

// StatusError is a non-2xx reply from a function.
type StatusError struct {
	Function string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("function %s: status %d", e.Function, e.Status)
	}
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.Status, e.Body)
}

// FailureError is a reply with success false. Message is the function's own
// error text, empty when it sent none.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string {
	if e.Message == "" {
		return "render service reported failure"
	}
	return e.Message
}

// ErrNoPDF is returned when the function reports success but no URL.
var ErrNoPDF = errors.New("render service returned no pdf url")

// GeneratePDF invokes fn with the document and template id.
func (c Client) GeneratePDF(ctx context.Context, fn string, req GenerateRequest) (GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.invoke(ctx, fn, req, &resp); err != nil {
		return GenerateResponse{}, err
	}
	if !resp.Success {
		return resp, &FailureError{Message: strings.TrimSpace(resp.Error)}
	}
	if strings.TrimSpace(resp.PDFURL) == "" {
		return resp, ErrNoPDF
	}
	return resp, nil
}

// EmailRequest is the body sent to the email function.
type EmailRequest struct {
	ReportID  string `json:"reportId"`
	Recipient string `json:"recipientEmail"`
	PDFURL    string `json:"pdfUrl"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SendEmail asks the email function to deliver a certificate.
func (c Client) SendEmail(ctx context.Context, req EmailRequest) error {
	var resp struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.invoke(ctx, EmailFunction, req, &resp); err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		return errors.New("email service reported failure")
	}
	return nil
}

func (c Client) invoke(ctx context.Context, fn string, in, out any) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("render base url not configured")
	}
	if strings.TrimSpace(fn) == "" {
		return errors.New("function name required")
	}
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", fn, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/functions/v1/"+fn, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("apikey", c.APIKey)
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &StatusError{Function: fn, Status: res.StatusCode, Body: errorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", fn, err)
	}
	return nil
}

func (c Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// errorMessage prefers the "error" field of a JSON body.
func errorMessage(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(body))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
