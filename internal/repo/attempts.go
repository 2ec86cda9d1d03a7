package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

const attemptColumns = `id,report_id,COALESCE(template_id,''),status,progress,COALESCE(message,''),COALESCE(pdf_url,''),
COALESCE(document_id,''),COALESCE(expires_at,''),COALESCE(file_path,''),COALESCE(error,''),requested_by,created_at,updated_at`

func scanAttempt(row scanner) (domain.ExportAttempt, error) {
	var a domain.ExportAttempt
	err := row.Scan(&a.ID, &a.ReportID, &a.TemplateID, &a.Status, &a.Progress, &a.Message, &a.PDFURL,
		&a.DocumentID, &a.ExpiresAt, &a.FilePath, &a.Error, &a.RequestedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAttempt(ctx context.Context, tx *sql.Tx, a domain.ExportAttempt) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO export_attempts(id,report_id,template_id,status,progress,message,requested_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ReportID, nullable(a.TemplateID), a.Status, a.Progress, nullable(a.Message), a.RequestedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateAttempt overwrites the mutable state of an attempt.
func (r Repo) UpdateAttempt(ctx context.Context, a domain.ExportAttempt) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE export_attempts SET status=?, progress=?, message=?, pdf_url=?, document_id=?, expires_at=?, file_path=?, error=?, updated_at=? WHERE id=?`,
		a.Status, a.Progress, nullable(a.Message), nullable(a.PDFURL), nullable(a.DocumentID), nullable(a.ExpiresAt),
		nullable(a.FilePath), nullable(a.Error), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAttempt(ctx context.Context, id string) (domain.ExportAttempt, error) {
	return scanAttempt(r.DB.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM export_attempts WHERE id=?`, id))
}

// ListAttempts returns a report's attempts, newest first.
func (r Repo) ListAttempts(ctx context.Context, reportID string, limit int) ([]domain.ExportAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM export_attempts WHERE report_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{reportID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ExportAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// FailStaleAttempts moves attempts left running by a previous process to error.
func (r Repo) FailStaleAttempts(ctx context.Context, message, updatedAt string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE export_attempts SET status='error', error=?, message=?, updated_at=? WHERE status NOT IN ('complete','error')`,
		message, message, updatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
