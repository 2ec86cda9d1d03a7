package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"certline/internal/certificate"
	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/download"
	"certline/internal/events"
	"certline/internal/export"
	"certline/internal/payload"
	"certline/internal/photos"
	"certline/internal/render"
	"certline/internal/repo"
	"certline/internal/storage"
)

// ErrNoCertificate means the report has no generated PDF yet.
var ErrNoCertificate = errors.New("certificate has not been generated yet")

// InputError is a caller mistake, such as an unknown certificate type.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Emailer sends generated certificates.
type Emailer interface {
	SendEmail(ctx context.Context, req render.EmailRequest) error
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Renderer export.Renderer
	Emailer  Emailer
	Saver    export.Saver
	Archive  export.Archiver
	Photos   photos.URLResolver
	// Notifier receives export notices in addition to the log and event log.
	Notifier export.Notifier
	Logger   *slog.Logger
	Guard    *export.Guard
	Now      func() time.Time

	running *sync.WaitGroup
}

// New wires an Engine from config. workspace anchors relative directories.
func New(db *sql.DB, cfg *config.Config, workspace string) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	client := render.Client{
		BaseURL: cfg.Render.BaseURL,
		APIKey:  cfg.Render.APIKey,
		HTTP:    &http.Client{Timeout: cfg.RenderTimeout() + 30*time.Second},
	}
	e := Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{},
		Config:   cfg,
		Renderer: client,
		Emailer:  client,
		Saver:    download.Downloader{Dir: workspacePath(workspace, cfg.Export.DownloadDir)},
		Photos:   storage.Bucket{PublicBaseURL: cfg.Storage.PublicBaseURL, Name: cfg.Storage.PhotoBucket},
		Guard:    &export.Guard{},
		Now:      time.Now,
		running:  &sync.WaitGroup{},
	}
	if cfg.Storage.ArchiveDir != "" {
		e.Archive = storage.Archive{
			Root:   workspacePath(workspace, cfg.Storage.ArchiveDir),
			Bucket: storage.Bucket{PublicBaseURL: cfg.Storage.PublicBaseURL, Name: cfg.Storage.ArchiveBucket},
		}
	}
	return e
}

func workspacePath(workspace, dir string) string {
	if dir == "" {
		dir = "."
	}
	if filepath.IsAbs(dir) || workspace == "" {
		return dir
	}
	return filepath.Join(workspace, dir)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// SaveDraftOptions are parameters for saving a report draft.
type SaveDraftOptions struct {
	ReportID   string
	ReportType string
	// FormJSON is the working document as sent by the editor.
	FormJSON []byte
	ActorID  string
}

// SaveDraft upserts a report. It returns warnings for unrecognised form keys.
func (e Engine) SaveDraft(ctx context.Context, opts SaveDraftOptions) (domain.Report, []string, error) {
	if opts.ActorID == "" {
		return domain.Report{}, nil, &InputError{Msg: "actor required"}
	}
	if _, err := e.config().Template(opts.ReportType); err != nil {
		return domain.Report{}, nil, &InputError{Msg: err.Error()}
	}
	form, warnings, err := certificate.DecodeForm(opts.FormJSON)
	if err != nil {
		return domain.Report{}, nil, &InputError{Msg: err.Error()}
	}
	if opts.ReportID == "" {
		opts.ReportID = uuid.New().String()
	}
	now := e.ts()
	rep := domain.Report{
		ReportID:   opts.ReportID,
		ReportType: opts.ReportType,
		Form:       form,
		Status:     "draft",
		CreatedBy:  opts.ActorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertReport(ctx, tx, rep); err != nil {
		return domain.Report{}, nil, fmt.Errorf("save report: %w", err)
	}
	status := certificate.Evaluate(form)
	if err := e.Events.Append(ctx, tx, events.ReportSaved, "report", rep.ReportID, opts.ActorID, events.EventPayload{
		"report_type": rep.ReportType,
		"composite":   status.Composite,
		"warnings":    warnings,
	}); err != nil {
		return domain.Report{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, nil, err
	}
	for _, w := range warnings {
		e.logger().Warn("form field ignored", "reportID", rep.ReportID, "warning", w)
	}
	saved, err := e.Repo.GetReport(ctx, rep.ReportID)
	if err != nil {
		return domain.Report{}, nil, err
	}
	return saved, warnings, nil
}

func (e Engine) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	return e.Repo.GetReport(ctx, reportID)
}

func (e Engine) ListReports(ctx context.Context, f repo.ReportFilters) ([]domain.Report, error) {
	return e.Repo.ListReports(ctx, f)
}

// Completeness evaluates the stored form of a report.
func (e Engine) Completeness(ctx context.Context, reportID string) (certificate.Status, error) {
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return certificate.Status{}, err
	}
	return certificate.Evaluate(rep.Form), nil
}

// AddPhoto links an uploaded object to an observation of a report.
func (e Engine) AddPhoto(ctx context.Context, reportID, observationID, filePath, actorID string) (domain.PhotoRecord, error) {
	if strings.TrimSpace(observationID) == "" || strings.TrimSpace(filePath) == "" {
		return domain.PhotoRecord{}, &InputError{Msg: "observation_id and file_path are required"}
	}
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return domain.PhotoRecord{}, err
	}
	p := domain.PhotoRecord{
		ID:            uuid.New().String(),
		ReportID:      rep.ReportID,
		ReportType:    rep.ReportType,
		ObservationID: observationID,
		FilePath:      filePath,
		CreatedAt:     e.ts(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPhoto(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, events.PhotoAdded, "report", rep.ReportID, actorID, events.EventPayload{
		"photo_id":       p.ID,
		"observation_id": observationID,
	}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func (e Engine) ListPhotos(ctx context.Context, reportID string) ([]domain.PhotoRecord, error) {
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListPhotos(ctx, rep.ReportID, rep.ReportType)
}

func (e Engine) builder(rep domain.Report) payload.Builder {
	return payload.Builder{
		Photos: photos.Resolver{
			Store:      e.Repo,
			URLs:       e.Photos,
			ReportType: rep.ReportType,
			Policy:     e.config().PhotoPolicy(),
			Logger:     e.logger(),
		},
		Now: e.now,
	}
}

// Preview returns the normalized document for a report as indented JSON.
func (e Engine) Preview(ctx context.Context, reportID string) ([]byte, error) {
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return e.builder(rep).Preview(ctx, rep.Form, rep.ReportID)
}

// Wait blocks until background exports have finished.
func (e Engine) Wait() {
	if e.running != nil {
		e.running.Wait()
	}
}

// RecoverAttempts fails attempts a previous process left running.
func (e Engine) RecoverAttempts(ctx context.Context) (int64, error) {
	return e.Repo.FailStaleAttempts(ctx, "export interrupted by restart", e.ts())
}

// EmailCertificate sends the generated certificate of a report to recipient.
func (e Engine) EmailCertificate(ctx context.Context, reportID, recipient, actorID string) error {
	if !strings.Contains(recipient, "@") {
		return &InputError{Msg: "invalid recipient email"}
	}
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	status := certificate.Evaluate(rep.Form)
	if !status.CanGenerate {
		return &export.ValidationError{Missing: status.MissingForGeneration()}
	}
	if rep.PDFURL == "" {
		return ErrNoCertificate
	}
	if e.Emailer == nil {
		return errors.New("email service not configured")
	}
	err = e.Emailer.SendEmail(ctx, render.EmailRequest{
		ReportID:  rep.ReportID,
		Recipient: recipient,
		PDFURL:    rep.PDFURL,
		Subject:   fmt.Sprintf("%s certificate for %s", strings.ToUpper(rep.ReportType), rep.Form.InstallationAddress),
	})
	if err != nil {
		return fmt.Errorf("send certificate email: %w", err)
	}
	return e.Events.Append(ctx, e.DB, events.CertificateEmailed, "report", rep.ReportID, actorID, events.EventPayload{"recipient": recipient})
}
