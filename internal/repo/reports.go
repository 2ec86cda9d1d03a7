package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"certline/internal/domain"
)

const reportColumns = `report_id,report_type,form_json,status,COALESCE(pdf_url,''),COALESCE(pdf_generated_at,''),
COALESCE(pdf_document_id,''),COALESCE(pdf_expires_at,''),COALESCE(storage_path,''),created_by,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (domain.Report, error) {
	var rep domain.Report
	var form string
	err := row.Scan(&rep.ReportID, &rep.ReportType, &form, &rep.Status, &rep.PDFURL, &rep.PDFGeneratedAt,
		&rep.PDFDocumentID, &rep.PDFExpiresAt, &rep.StoragePath, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if form != "" {
		if err := json.Unmarshal([]byte(form), &rep.Form); err != nil {
			return rep, fmt.Errorf("decode form for report %s: %w", rep.ReportID, err)
		}
	}
	return rep, nil
}

// UpsertReport writes the draft form. Last write wins; artifact columns are
// left untouched.
func (r Repo) UpsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	form, err := json.Marshal(rep.Form)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if rep.Status == "" {
		rep.Status = "draft"
	}
	_, err = r.exec(tx).ExecContext(ctx, `INSERT INTO reports(report_id,report_type,form_json,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(report_id) DO UPDATE SET report_type=excluded.report_type, form_json=excluded.form_json, status=excluded.status, updated_at=excluded.updated_at`,
		rep.ReportID, rep.ReportType, string(form), rep.Status, rep.CreatedBy, rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE report_id=?`, reportID))
}

type ReportFilters struct {
	ReportType string
	Status     string
	Limit      int
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.Report, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ReportType != "" {
		clauses = append(clauses, "report_type=?")
		args = append(args, f.ReportType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + reportColumns + ` FROM reports WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY updated_at DESC, report_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// SaveArtifact records the rendered PDF on the report and marks it completed.
// Empty optional fields keep their stored value.
func (r Repo) SaveArtifact(ctx context.Context, reportID string, a domain.Artifact, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET pdf_url=?, pdf_generated_at=?,
pdf_document_id=COALESCE(?,pdf_document_id), pdf_expires_at=COALESCE(?,pdf_expires_at), storage_path=COALESCE(?,storage_path),
status='completed', updated_at=? WHERE report_id=?`,
		a.PDFURL, a.GeneratedAt, nullable(a.DocumentID), nullable(a.ExpiresAt), nullable(a.StoragePath), updatedAt, reportID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
