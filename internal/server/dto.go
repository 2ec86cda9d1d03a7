package server

import (
	"encoding/json"

	"certline/internal/certificate"
	"certline/internal/domain"
)

// Request payloads

type SaveReportRequest struct {
	ReportType string         `json:"report_type" enum:"eic,eicr,minor-works"`
	Form       map[string]any `json:"form"`
}

type AddPhotoRequest struct {
	ObservationID string `json:"observation_id"`
	FilePath      string `json:"file_path"`
}

type StartExportRequest struct {
	TemplateID string `json:"template_id,omitempty"`
}

type EmailRequest struct {
	Recipient string `json:"recipient" format:"email"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	TTL     int    `json:"ttl_seconds,omitempty"`
}

// Responses

type ReportResponse struct {
	domain.Report
	Warnings []string `json:"warnings,omitempty"`
}

type CompletenessResponse struct {
	ReportID string `json:"report_id"`
	certificate.Status
}

type EmailResponse struct {
	ReportID  string `json:"report_id"`
	Recipient string `json:"recipient"`
	Sent      bool   `json:"sent"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
