// Package photos attaches stored photo evidence to report observations.
package photos

import (
	"context"
	"fmt"
	"log/slog"

	"certline/internal/domain"
)

// Store performs the bulk photo lookup for one report.
type Store interface {
	ListPhotos(ctx context.Context, reportID, reportType string) ([]domain.PhotoRecord, error)
}

// URLResolver turns a stored file path into a durable public URL.
type URLResolver interface {
	PublicURL(filePath string) (string, error)
}

// FailurePolicy decides what happens when the photo store is unavailable.
type FailurePolicy string

const (
	// FailExport aborts the export so evidence is never silently dropped.
	FailExport FailurePolicy = "fail"
	// OmitPhotos exports every observation with empty evidence.
	OmitPhotos FailurePolicy = "omit"
)

// ParsePolicy maps a config value to a policy, defaulting to FailExport.
func ParsePolicy(v string) (FailurePolicy, error) {
	switch FailurePolicy(v) {
	case "", FailExport:
		return FailExport, nil
	case OmitPhotos:
		return OmitPhotos, nil
	default:
		return "", fmt.Errorf("invalid photo failure policy %q (want fail or omit)", v)
	}
}

// ObservationWithPhotos is the export-only copy of an observation.
type ObservationWithPhotos struct {
	ID             string   `json:"id"`
	Item           string   `json:"item"`
	Description    string   `json:"description"`
	Code           string   `json:"code"`
	Location       string   `json:"location"`
	Recommendation string   `json:"recommendation"`
	PhotoEvidence  []string `json:"photo_evidence"`
	PhotoCount     int      `json:"photo_count"`
}

// ResolutionError reports a failed bulk photo fetch or URL resolution.
type ResolutionError struct {
	ReportID string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve photos for report %s: %v", e.ReportID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver merges photo URLs into observations with a single store query.
type Resolver struct {
	Store      Store
	URLs       URLResolver
	ReportType string
	Policy     FailurePolicy
	Logger     *slog.Logger
}

func (r Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Attach returns a copy of observations, in order, each with its photo URLs.
func (r Resolver) Attach(ctx context.Context, observations []domain.ObservationRecord, reportID string) ([]ObservationWithPhotos, error) {
	out := make([]ObservationWithPhotos, 0, len(observations))
	if len(observations) == 0 {
		return out, nil
	}
	byObservation, err := r.fetch(ctx, reportID)
	if err != nil {
		if r.Policy != OmitPhotos {
			return nil, err
		}
		r.logger().Warn("exporting without photo evidence", "reportID", reportID, "error", err)
		byObservation = nil
	}
	for _, obs := range observations {
		urls := byObservation[obs.ID]
		if urls == nil {
			urls = []string{}
		}
		out = append(out, ObservationWithPhotos{
			ID:             obs.ID,
			Item:           obs.Item,
			Description:    obs.Description,
			Code:           obs.Code,
			Location:       obs.Location,
			Recommendation: obs.Recommendation,
			PhotoEvidence:  urls,
			PhotoCount:     len(urls),
		})
	}
	return out, nil
}

func (r Resolver) fetch(ctx context.Context, reportID string) (map[string][]string, error) {
	if r.Store == nil || r.URLs == nil {
		return nil, &ResolutionError{ReportID: reportID, Err: fmt.Errorf("photo store not configured")}
	}
	records, err := r.Store.ListPhotos(ctx, reportID, r.ReportType)
	if err != nil {
		return nil, &ResolutionError{ReportID: reportID, Err: err}
	}
	grouped := make(map[string][]string)
	for _, rec := range records {
		url, err := r.URLs.PublicURL(rec.FilePath)
		if err != nil {
			return nil, &ResolutionError{ReportID: reportID, Err: fmt.Errorf("photo %s: %w", rec.ID, err)}
		}
		grouped[rec.ObservationID] = append(grouped[rec.ObservationID], url)
	}
	return grouped, nil
}
