package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

// New returns an HTTP handler exposing the certline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	installErrorEnvelope()

	router := chi.NewRouter()
	router.Use(captureBody(maxBodyBytes))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("certline API", "0.2.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerReports(group, cfg.Engine)
	registerPhotos(group, cfg.Engine)
	registerExports(group, cfg.Engine)
	registerEmail(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type reportPath struct {
	ReportID string `path:"report_id"`
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-report",
		Method:      http.MethodPut,
		Path:        "/reports/{report_id}",
		Summary:     "Save report draft",
		Description: "Upserts the working document. The last write wins. Unrecognised form keys are ignored and reported as warnings.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ReportID string            `path:"report_id"`
		Body     SaveReportRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		form := input.Body.Form
		if form == nil {
			form = map[string]any{}
		}
		formJSON, err := json.Marshal(form)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid form", nil)
		}
		rep, warnings, err := e.SaveDraft(ctx, engine.SaveDraftOptions{
			ReportID:   input.ReportID,
			ReportType: input.Body.ReportType,
			FormJSON:   formJSON,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: ReportResponse{Report: rep, Warnings: warnings}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
	}, func(ctx context.Context, input *struct {
		ReportType string `query:"report_type" enum:"eic,eicr,minor-works"`
		Status     string `query:"status" enum:"draft,completed"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		items, err := e.ListReports(ctx, repo.ReportFilters{
			ReportType: input.ReportType,
			Status:     input.Status,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		rep, err := e.GetReport(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-completeness",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}/completeness",
		Summary:     "Evaluate report completeness",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*struct {
		Body CompletenessResponse `json:"body"`
	}, error) {
		st, err := e.Completeness(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		st.Missing = nonNilSlice(st.Missing)
		return &struct {
			Body CompletenessResponse `json:"body"`
		}{Body: CompletenessResponse{ReportID: input.ReportID, Status: st}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-payload",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}/payload",
		Summary:     "Preview the render document",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *reportPath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		data, err := e.Preview(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: doc}, nil
	})
}

func registerPhotos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-photo",
		Method:        http.MethodPost,
		Path:          "/reports/{report_id}/photos",
		Summary:       "Link an uploaded photo to an observation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string          `path:"report_id"`
		Body     AddPhotoRequest `json:"body"`
	}) (*struct {
		Body domain.PhotoRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddPhoto(ctx, input.ReportID, input.Body.ObservationID, input.Body.FilePath, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PhotoRecord `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-photos",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}/photos",
		Summary:     "List photos of a report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*struct {
		Body []domain.PhotoRecord `json:"body"`
	}, error) {
		items, err := e.ListPhotos(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PhotoRecord `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerExports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-export",
		Method:        http.MethodPost,
		Path:          "/reports/{report_id}/exports",
		Summary:       "Generate the certificate PDF",
		Description:   "Starts an export and returns the attempt. Poll GET /exports/{attempt_id} for progress.",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ReportID string              `path:"report_id"`
		Body     *StartExportRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Location string               `header:"Location"`
		Body     domain.ExportAttempt `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ExportOptions{ReportID: input.ReportID, ActorID: actorID}
		if input.Body != nil {
			opts.TemplateID = strings.TrimSpace(input.Body.TemplateID)
		}
		attempt, err := e.StartExport(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Location string               `header:"Location"`
			Body     domain.ExportAttempt `json:"body"`
		}{Location: "exports/" + attempt.ID, Body: attempt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-exports",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}/exports",
		Summary:     "List export attempts of a report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
		Limit    int    `query:"limit" default:"20"`
	}) (*struct {
		Body []domain.ExportAttempt `json:"body"`
	}, error) {
		items, err := e.ListAttempts(ctx, input.ReportID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ExportAttempt `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-export",
		Method:      http.MethodGet,
		Path:        "/exports/{attempt_id}",
		Summary:     "Get export progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AttemptID string `path:"attempt_id"`
	}) (*struct {
		Body domain.ExportAttempt `json:"body"`
	}, error) {
		a, err := e.GetAttempt(ctx, input.AttemptID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ExportAttempt `json:"body"`
		}{Body: a}, nil
	})
}

func registerEmail(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "email-certificate",
		Method:      http.MethodPost,
		Path:        "/reports/{report_id}/email",
		Summary:     "Email the generated certificate",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ReportID string       `path:"report_id"`
		Body     EmailRequest `json:"body"`
	}) (*struct {
		Body EmailResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		recipient := strings.TrimSpace(input.Body.Recipient)
		if err := e.EmailCertificate(ctx, input.ReportID, recipient, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmailResponse `json:"body"`
		}{Body: EmailResponse{ReportID: input.ReportID, Recipient: recipient, Sent: true}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"report"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, time.Duration(input.Body.TTL)*time.Second)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
