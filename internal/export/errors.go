package export

import (
	"errors"
	"fmt"
	"strings"

	"certline/internal/photos"
)

// GenericFailure is shown when no more specific message is available.
const GenericFailure = "PDF generation failed"

// ErrExportInProgress rejects a second export of a report that is still running.
var ErrExportInProgress = errors.New("an export is already in progress for this report")

// ValidationError means the certificate cannot be generated yet.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "certificate is not ready to generate"
	}
	return "certificate is not ready to generate: missing " + strings.Join(e.Missing, ", ")
}

// RenderServiceError wraps a failed call to the render function.
type RenderServiceError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *RenderServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericFailure
}

func (e *RenderServiceError) Unwrap() error { return e.Err }

// DownloadError means the PDF exists remotely but no local copy was saved.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download certificate: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// PersistenceWarning reports a failed best-effort write after rendering.
// It never fails an export.
type PersistenceWarning struct {
	ReportID string
	Err      error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("save artifact for report %s: %v", e.ReportID, e.Err)
}

func (e *PersistenceWarning) Unwrap() error { return e.Err }

// UserMessage maps an export error to the single message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation *ValidationError
		renderErr  *RenderServiceError
		download   *DownloadError
		photoErr   *photos.ResolutionError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &renderErr):
		return renderErr.Error()
	case errors.As(err, &download):
		return "The certificate was generated but could not be downloaded"
	case errors.As(err, &photoErr):
		return "Inspection photos could not be loaded"
	case errors.Is(err, ErrExportInProgress):
		return err.Error()
	default:
		return GenericFailure
	}
}
