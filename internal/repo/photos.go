package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

func (r Repo) InsertPhoto(ctx context.Context, tx *sql.Tx, p domain.PhotoRecord) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO inspection_photos(id,report_id,report_type,observation_id,file_path,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.ReportID, p.ReportType, p.ObservationID, p.FilePath, p.CreatedAt)
	return err
}

// ListPhotos returns every photo of a report in insertion order. An empty
// reportType matches all types.
func (r Repo) ListPhotos(ctx context.Context, reportID, reportType string) ([]domain.PhotoRecord, error) {
	query := `SELECT id,report_id,report_type,observation_id,file_path,created_at FROM inspection_photos WHERE report_id=?`
	args := []any{reportID}
	if reportType != "" {
		query += ` AND report_type=?`
		args = append(args, reportType)
	}
	query += ` ORDER BY created_at, rowid`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.PhotoRecord{}
	for rows.Next() {
		var p domain.PhotoRecord
		if err := rows.Scan(&p.ID, &p.ReportID, &p.ReportType, &p.ObservationID, &p.FilePath, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
