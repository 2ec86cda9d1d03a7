// Package export drives a certificate from validated form to saved PDF,
// reporting progress along the way.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"certline/internal/certificate"
	"certline/internal/domain"
	"certline/internal/download"
	"certline/internal/payload"
	"certline/internal/render"
)

// DefaultRenderTimeout bounds the render function call.
const DefaultRenderTimeout = 60 * time.Second

type DocumentBuilder interface {
	Build(ctx context.Context, form domain.CertificateForm, reportID string) (payload.Document, error)
}

type Renderer interface {
	GeneratePDF(ctx context.Context, fn string, req render.GenerateRequest) (render.GenerateResponse, error)
}

// ArtifactStore records the rendered PDF reference on the report.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, reportID string, a domain.Artifact) error
}

// Saver fetches the PDF and writes it to a local file named name.
type Saver interface {
	Save(ctx context.Context, url, name string) (string, []byte, error)
}

// Archiver keeps a permanent copy of the PDF bytes.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) (storagePath, publicURL string, err error)
}

// Request identifies the certificate to export.
type Request struct {
	ReportID   string
	ReportType string
	Form       domain.CertificateForm
	TemplateID string
	// Function is the render function name, e.g. generate-eic-pdf.
	Function string
}

// Result is a completed export.
type Result struct {
	Artifact domain.Artifact
	FilePath string
	Filename string
	Warnings []string
}

// Orchestrator runs exports. Builder, Renderer and Saver are required;
// Artifacts, Archive and Notifier are optional.
type Orchestrator struct {
	Builder       DocumentBuilder
	Renderer      Renderer
	Artifacts     ArtifactStore
	Saver         Saver
	Archive       Archiver
	Notifier      Notifier
	Guard         *Guard
	Logger        *slog.Logger
	RenderTimeout time.Duration
	Now           func() time.Time
}

// Export validates and runs one export to a terminal state.
func (o *Orchestrator) Export(ctx context.Context, req Request, rep Reporter) (Result, error) {
	p, err := o.Start(ctx, req, rep)
	if err != nil {
		return Result{}, err
	}
	return p.Run()
}

// Pending is a validated export that holds its report's claim until it is
// run or discarded.
type Pending struct {
	o       *Orchestrator
	ctx     context.Context
	req     Request
	rep     Reporter
	release func()
}

// Start performs the readiness and in-flight checks without entering any
// state. The returned Pending must be run or discarded.
func (o *Orchestrator) Start(ctx context.Context, req Request, rep Reporter) (*Pending, error) {
	status := certificate.Evaluate(req.Form)
	if !status.CanGenerate {
		err := &ValidationError{Missing: status.MissingForGeneration()}
		o.notify(ctx, Notice{Level: LevelError, Title: "Certificate incomplete", Message: err.Error(), ReportID: req.ReportID})
		return nil, err
	}
	release := func() {}
	if o.Guard != nil {
		r, ok := o.Guard.Acquire(req.ReportID)
		if !ok {
			return nil, ErrExportInProgress
		}
		release = r
	}
	if rep == nil {
		rep = discard{}
	}
	return &Pending{o: o, ctx: ctx, req: req, rep: rep, release: release}, nil
}

// Discard releases the claim without running.
func (p *Pending) Discard() { p.release() }

// Run executes the export. It always ends with exactly one terminal update.
func (p *Pending) Run() (res Result, err error) {
	o, ctx, req, rep := p.o, p.ctx, p.req, p.rep
	defer p.release()
	defer func() {
		if r := recover(); r != nil {
			o.logger().Error("export panicked", "reportID", req.ReportID, "panic", r)
			res = Result{}
			err = &RenderServiceError{Message: GenericFailure, Err: fmt.Errorf("panic: %v", r)}
			o.fail(ctx, req, rep, err)
		}
	}()
	res, err = o.run(ctx, req, rep)
	if err != nil {
		o.fail(ctx, req, rep, err)
		return Result{}, err
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, rep Reporter) (Result, error) {
	log := o.logger().With("reportID", req.ReportID, "template", req.TemplateID)

	rep.Report(Update{Stage: StagePreparing, Percent: 10, Message: "Preparing certificate data"})
	doc, err := o.Builder.Build(ctx, req.Form, req.ReportID)
	if err != nil {
		return Result{}, err
	}
	rep.Report(Update{Stage: StagePreparing, Percent: 30, Message: "Certificate data prepared"})

	rep.Report(Update{Stage: StageGenerating, Percent: 50, Message: "Generating PDF"})
	resp, err := o.render(ctx, req, doc)
	if err != nil {
		return Result{}, err
	}
	rep.Report(Update{Stage: StageGenerating, Percent: 70, Message: "PDF generated"})

	artifact := domain.Artifact{
		PDFURL:      resp.PDFURL,
		DocumentID:  resp.DocumentID,
		ExpiresAt:   resp.ExpiresAt,
		GeneratedAt: o.now().UTC().Format(time.RFC3339),
	}
	rep.Report(Update{Stage: StageGenerating, Percent: 80, Message: "Saving certificate reference"})
	var warnings []string
	if w := o.persist(ctx, req.ReportID, artifact); w != nil {
		log.Warn("artifact not recorded", "error", w)
		warnings = append(warnings, w.Error())
	}

	certType := req.Form.CertificateType
	if certType == "" {
		certType = req.ReportType
	}
	name := download.Filename(certType, req.Form.CertificateNumber, req.Form.ClientName, o.now())
	path, data, err := o.Saver.Save(ctx, artifact.PDFURL, name)
	if err != nil {
		return Result{}, &DownloadError{URL: artifact.PDFURL, Err: err}
	}
	rep.Report(Update{Stage: StageGenerating, Percent: 90, Message: "Certificate downloaded"})

	if o.Archive != nil {
		key := req.ReportID + "/" + name
		storagePath, publicURL, err := o.Archive.Put(ctx, key, data)
		if err != nil {
			log.Warn("archive copy failed", "error", err)
			warnings = append(warnings, fmt.Sprintf("archive copy: %v", err))
		} else {
			artifact.StoragePath = storagePath
			if publicURL != "" {
				artifact.PDFURL = publicURL
			}
			if w := o.persist(ctx, req.ReportID, artifact); w != nil {
				log.Warn("storage path not recorded", "error", w)
				warnings = append(warnings, w.Error())
			}
		}
	}

	rep.Report(Update{Stage: StageComplete, Percent: 100, Message: "Certificate ready"})
	log.Info("export complete", "file", path, "pdfURL", artifact.PDFURL)
	o.notify(ctx, Notice{Level: LevelSuccess, Title: "Certificate generated", Message: name, ReportID: req.ReportID})
	return Result{Artifact: artifact, FilePath: path, Filename: name, Warnings: warnings}, nil
}

func (o *Orchestrator) render(ctx context.Context, req Request, doc payload.Document) (render.GenerateResponse, error) {
	timeout := o.RenderTimeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := o.Renderer.GeneratePDF(rctx, req.Function, render.GenerateRequest{FormData: doc, TemplateID: req.TemplateID})
	if err == nil {
		return resp, checkResponse(resp)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return resp, &RenderServiceError{
			Message: "PDF generation timed out after " + formatTimeout(timeout),
			Timeout: true,
			Err:     err,
		}
	}
	return resp, &RenderServiceError{Message: renderMessage(err), Err: err}
}

// renderMessage surfaces the service's own text when it sent one.
func renderMessage(err error) string {
	var failure *render.FailureError
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	var status *render.StatusError
	if errors.As(err, &status) && status.Body != "" {
		return status.Body
	}
	return GenericFailure
}

// checkResponse rejects a reply that carries no usable certificate even
// though the renderer returned no error.
func checkResponse(resp render.GenerateResponse) error {
	msg := strings.TrimSpace(resp.Error)
	if msg == "" {
		msg = GenericFailure
	}
	switch {
	case !resp.Success:
		return &RenderServiceError{Message: msg, Err: &render.FailureError{Message: resp.Error}}
	case strings.TrimSpace(resp.PDFURL) == "":
		return &RenderServiceError{Message: msg, Err: render.ErrNoPDF}
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, reportID string, a domain.Artifact) *PersistenceWarning {
	if o.Artifacts == nil {
		return nil
	}
	if err := o.Artifacts.SaveArtifact(ctx, reportID, a); err != nil {
		w := &PersistenceWarning{ReportID: reportID, Err: err}
		o.notify(ctx, Notice{Level: LevelWarning, Title: "Certificate not saved to report", Message: w.Error(), ReportID: reportID})
		return w
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, req Request, rep Reporter, err error) {
	msg := UserMessage(err)
	o.logger().Error("export failed", "reportID", req.ReportID, "error", err)
	rep.Report(Update{Stage: StageError, Message: msg})
	o.notify(ctx, Notice{Level: LevelError, Title: "Export failed", Message: msg, ReportID: req.ReportID})
}

func (o *Orchestrator) notify(ctx context.Context, n Notice) {
	if o.Notifier != nil {
		o.Notifier.Notify(ctx, n)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
