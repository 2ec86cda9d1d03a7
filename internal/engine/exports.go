package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/export"
)

// ExportOptions are parameters for starting an export.
type ExportOptions struct {
	ReportID string
	// TemplateID overrides the configured template for the report type.
	TemplateID string
	ActorID    string
}

// StartExport validates the report, records an attempt and runs the export
// in the background. The export is detached from ctx and runs to a
// terminal state even if the caller goes away.
func (e Engine) StartExport(ctx context.Context, opts ExportOptions) (domain.ExportAttempt, error) {
	attempt, pending, finish, err := e.prepareExport(context.WithoutCancel(ctx), opts, nil)
	if err != nil {
		return domain.ExportAttempt{}, err
	}
	if e.running != nil {
		e.running.Add(1)
	}
	go func() {
		if e.running != nil {
			defer e.running.Done()
		}
		res, err := pending.Run()
		finish(res, err)
	}()
	return attempt, nil
}

// RunExport is the synchronous form of StartExport. rep receives progress
// alongside the stored attempt.
func (e Engine) RunExport(ctx context.Context, opts ExportOptions, rep export.Reporter) (domain.ExportAttempt, export.Result, error) {
	attempt, pending, finish, err := e.prepareExport(ctx, opts, rep)
	if err != nil {
		return domain.ExportAttempt{}, export.Result{}, err
	}
	res, runErr := pending.Run()
	final := finish(res, runErr)
	if final.ID == "" {
		final = attempt
	}
	return final, res, runErr
}

func (e Engine) prepareExport(ctx context.Context, opts ExportOptions, extra export.Reporter) (domain.ExportAttempt, *export.Pending, func(export.Result, error) domain.ExportAttempt, error) {
	if opts.ActorID == "" {
		return domain.ExportAttempt{}, nil, nil, &InputError{Msg: "actor required"}
	}
	rep, err := e.Repo.GetReport(ctx, opts.ReportID)
	if err != nil {
		return domain.ExportAttempt{}, nil, nil, err
	}
	tpl, err := e.config().Template(rep.ReportType)
	if err != nil {
		return domain.ExportAttempt{}, nil, nil, &InputError{Msg: err.Error()}
	}
	if opts.TemplateID != "" {
		tpl.TemplateID = opts.TemplateID
	}
	now := e.ts()
	attempt := domain.ExportAttempt{
		ID:          uuid.New().String(),
		ReportID:    rep.ReportID,
		TemplateID:  tpl.TemplateID,
		Status:      string(export.StagePreparing),
		RequestedBy: opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tracker := &attemptReporter{engine: e, attempt: attempt}
	var reporter export.Reporter = tracker
	if extra != nil {
		reporter = export.MultiReporter{tracker, extra}
	}
	orch := e.orchestrator(rep, opts.ActorID)
	pending, err := orch.Start(ctx, export.Request{
		ReportID:   rep.ReportID,
		ReportType: rep.ReportType,
		Form:       rep.Form,
		TemplateID: tpl.TemplateID,
		Function:   tpl.Function,
	}, reporter)
	if err != nil {
		return domain.ExportAttempt{}, nil, nil, err
	}
	if err := e.recordAttempt(ctx, attempt, opts.ActorID); err != nil {
		pending.Discard()
		return domain.ExportAttempt{}, nil, nil, err
	}
	finish := func(res export.Result, runErr error) domain.ExportAttempt {
		return e.finishAttempt(ctx, tracker, res, runErr, opts.ActorID)
	}
	return attempt, pending, finish, nil
}

func (e Engine) recordAttempt(ctx context.Context, a domain.ExportAttempt, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAttempt(ctx, tx, a); err != nil {
		return fmt.Errorf("record export attempt: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ExportStarted, "report", a.ReportID, actorID, events.EventPayload{
		"attempt_id":  a.ID,
		"template_id": a.TemplateID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) finishAttempt(ctx context.Context, tracker *attemptReporter, res export.Result, runErr error, actorID string) domain.ExportAttempt {
	a := tracker.snapshot()
	a.UpdatedAt = e.ts()
	evtType := events.ExportCompleted
	payload := events.EventPayload{"attempt_id": a.ID}
	if runErr != nil {
		a.Status = string(export.StageError)
		a.Error = export.UserMessage(runErr)
		evtType = events.ExportFailed
		payload["error"] = a.Error
	} else {
		a.Status = string(export.StageComplete)
		a.Progress = 100
		a.PDFURL = res.Artifact.PDFURL
		a.DocumentID = res.Artifact.DocumentID
		a.ExpiresAt = res.Artifact.ExpiresAt
		a.FilePath = res.FilePath
		payload["pdf_url"] = a.PDFURL
		payload["file_name"] = res.Filename
		if res.Artifact.StoragePath != "" {
			payload["storage_path"] = res.Artifact.StoragePath
		}
		if len(res.Warnings) > 0 {
			payload["warnings"] = res.Warnings
		}
	}
	if err := e.Repo.UpdateAttempt(ctx, a); err != nil {
		e.logger().Error("update export attempt", "attemptID", a.ID, "error", err)
	}
	if err := e.Events.Append(ctx, e.DB, evtType, "report", a.ReportID, actorID, payload); err != nil {
		e.logger().Error("append export event", "attemptID", a.ID, "error", err)
	}
	return a
}

func (e Engine) orchestrator(rep domain.Report, actorID string) *export.Orchestrator {
	return &export.Orchestrator{
		Builder:   e.builder(rep),
		Renderer:  e.Renderer,
		Artifacts: artifactStore{engine: e},
		Saver:     e.Saver,
		Archive:   e.Archive,
		Notifier: export.Notifiers{
			export.LogNotifier{Logger: e.logger()},
			eventNotifier{engine: e, actorID: actorID},
			e.Notifier,
		},
		Guard:         e.Guard,
		Logger:        e.logger(),
		RenderTimeout: e.config().RenderTimeout(),
		Now:           e.now,
	}
}

func (e Engine) GetAttempt(ctx context.Context, id string) (domain.ExportAttempt, error) {
	return e.Repo.GetAttempt(ctx, id)
}

func (e Engine) ListAttempts(ctx context.Context, reportID string, limit int) ([]domain.ExportAttempt, error) {
	if _, err := e.Repo.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	return e.Repo.ListAttempts(ctx, reportID, limit)
}

// attemptReporter mirrors progress into the export_attempts row.
type attemptReporter struct {
	engine  Engine
	mu      sync.Mutex
	attempt domain.ExportAttempt
}

func (r *attemptReporter) Report(u export.Update) {
	r.mu.Lock()
	r.attempt.Status = string(u.Stage)
	if u.Stage != export.StageError {
		r.attempt.Progress = u.Percent
	}
	r.attempt.Message = u.Message
	if u.Stage == export.StageError {
		r.attempt.Error = u.Message
	}
	r.attempt.UpdatedAt = r.engine.ts()
	a := r.attempt
	r.mu.Unlock()
	if err := r.engine.Repo.UpdateAttempt(context.Background(), a); err != nil {
		r.engine.logger().Warn("record export progress", "attemptID", a.ID, "error", err)
	}
}

func (r *attemptReporter) snapshot() domain.ExportAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

type artifactStore struct {
	engine Engine
}

func (s artifactStore) SaveArtifact(ctx context.Context, reportID string, a domain.Artifact) error {
	return s.engine.Repo.SaveArtifact(ctx, reportID, a, s.engine.ts())
}

// eventNotifier records persistence warnings in the event log. Success and
// failure events are written with the attempt outcome.
type eventNotifier struct {
	engine  Engine
	actorID string
}

func (n eventNotifier) Notify(ctx context.Context, notice export.Notice) {
	if notice.Level != export.LevelWarning {
		return
	}
	err := n.engine.Events.Append(ctx, n.engine.DB, events.ExportPersistFailed, "report", notice.ReportID, n.actorID, events.EventPayload{
		"message": notice.Message,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		n.engine.logger().Warn("record persistence warning", "reportID", notice.ReportID, "error", err)
	}
}
