package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"certline/internal/engine"
	"certline/internal/export"
	"certline/internal/photos"
	"certline/internal/repo"
)

// apiErrorBody is the body of every non-2xx response.
type apiErrorBody struct {
	Code    string         `json:"code" example:"not_ready"`
	Message string         `json:"message" example:"certificate is not ready to generate: missing client name"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"missing\":[\"client name\"]}"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = codeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// installErrorEnvelope routes huma's own errors through apiError.
// Request validation failures become 400 so that 422 keeps meaning not_ready.
func installErrorEnvelope() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}
}

// handleError maps engine and export errors onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		se       huma.StatusError
		verr     *export.ValidationError
		inputErr *engine.InputError
		rerr     *photos.ResolutionError
		serr     *export.RenderServiceError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &verr):
		return newAPIError(http.StatusUnprocessableEntity, "not_ready", err.Error(), map[string]any{"missing": verr.Missing})
	case errors.As(err, &inputErr):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, export.ErrExportInProgress):
		return newAPIError(http.StatusConflict, "export_in_progress", err.Error(), nil)
	case errors.Is(err, engine.ErrNoCertificate):
		return newAPIError(http.StatusConflict, "no_certificate", err.Error(), nil)
	case errors.As(err, &rerr), errors.As(err, &serr):
		return newAPIError(http.StatusBadGateway, "upstream_failed", export.UserMessage(err), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusUnprocessableEntity:
		return "not_ready"
	case http.StatusInternalServerError:
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
