package payload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/domain"
	"certline/internal/photos"
)

type stubAttacher struct {
	err   error
	calls int
}

func (s *stubAttacher) Attach(_ context.Context, obs []domain.ObservationRecord, _ string) ([]photos.ObservationWithPhotos, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]photos.ObservationWithPhotos, 0, len(obs))
	for _, o := range obs {
		out = append(out, photos.ObservationWithPhotos{ID: o.ID, Description: o.Description, PhotoEvidence: []string{}})
	}
	return out, nil
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

func TestBuildEmptyFormHasEveryKey(t *testing.T) {
	b := Builder{Photos: &stubAttacher{}, Now: fixedNow}
	data, err := b.Preview(context.Background(), domain.CertificateForm{}, "rep-1")
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, len(Sections))
	for _, key := range Sections {
		assert.Contains(t, raw, key)
	}
	assert.JSONEq(t, `[]`, string(raw["schedule_of_tests"]))
	assert.JSONEq(t, `[]`, string(raw["observations"]))
	assert.JSONEq(t, `[]`, string(raw["inspection_items"]))
}

func TestBuildSubstitutesNotApplicable(t *testing.T) {
	src := "c-9"
	blank := "  "
	form := domain.CertificateForm{ScheduleOfTests: []domain.CircuitTestRecord{
		{CircuitNumber: "1", CircuitDescription: "Lights", Zs: "0.45", SourceCircuitID: &src},
		{CircuitNumber: "2", SourceCircuitID: &blank},
		{CircuitNumber: "3"},
	}}
	doc, err := Builder{Photos: &stubAttacher{}, Now: fixedNow}.Build(context.Background(), form, "rep-1")
	require.NoError(t, err)
	require.Len(t, doc.ScheduleOfTests, 3)

	first := doc.ScheduleOfTests[0]
	assert.Equal(t, "1", first.CircuitNumber)
	assert.Equal(t, "Lights", first.CircuitDescription)
	assert.Equal(t, "0.45", first.Zs)
	assert.Equal(t, NotApplicable, first.RingR1)
	require.NotNil(t, first.SourceCircuitID)
	assert.Equal(t, "c-9", *first.SourceCircuitID)

	assert.Equal(t, "2", doc.ScheduleOfTests[1].CircuitNumber)
	assert.Nil(t, doc.ScheduleOfTests[1].SourceCircuitID)
	assert.Equal(t, NotApplicable, doc.ScheduleOfTests[2].CircuitDescription)

	data, err := json.Marshal(doc.ScheduleOfTests[2])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_circuit_id":null`)
}

func TestBuildKeepsObservationOrder(t *testing.T) {
	form := domain.CertificateForm{Observations: []domain.ObservationRecord{{ID: "z"}, {ID: "a"}, {ID: "m"}}}
	doc, err := Builder{Photos: &stubAttacher{}, Now: fixedNow}.Build(context.Background(), form, "rep-1")
	require.NoError(t, err)
	require.Len(t, doc.Observations, 3)
	assert.Equal(t, "z", doc.Observations[0].ID)
	assert.Equal(t, "a", doc.Observations[1].ID)
	assert.Equal(t, "m", doc.Observations[2].ID)
}

func TestBuildSkipsPhotosWithoutObservations(t *testing.T) {
	att := &stubAttacher{err: errors.New("down")}
	_, err := Builder{Photos: att, Now: fixedNow}.Build(context.Background(), domain.CertificateForm{ClientName: "A"}, "rep-1")
	require.NoError(t, err)
	assert.Zero(t, att.calls)
}

func TestBuildPropagatesPhotoFailure(t *testing.T) {
	att := &stubAttacher{err: errors.New("down")}
	form := domain.CertificateForm{Observations: []domain.ObservationRecord{{ID: "a"}}}
	_, err := Builder{Photos: att, Now: fixedNow}.Build(context.Background(), form, "rep-1")
	assert.EqualError(t, err, "down")
}

func TestBuildMetadataAndDeclarations(t *testing.T) {
	form := domain.CertificateForm{
		CertificateType:   domain.CertificateEIC,
		CertificateNumber: "EIC-42",
		ClientName:        "Acme",
		DesignerName:      "D",
		DesignerSignature: "sig",
		InspectorName:     "I",
		Inspections: map[string]domain.InspectionItem{
			"2.1": {Outcome: "pass"},
			"1.1": {Outcome: "n/a", Notes: "none"},
		},
	}
	doc, err := Builder{Photos: &stubAttacher{}, Now: fixedNow}.Build(context.Background(), form, "rep-7")
	require.NoError(t, err)

	assert.Equal(t, "rep-7", doc.Metadata.ReportID)
	assert.Equal(t, "EIC-42", doc.Metadata.CertificateNumber)
	assert.Equal(t, "2024-03-01T09:30:00Z", doc.Metadata.GeneratedAt)
	assert.False(t, doc.Metadata.IsFullyComplete)
	assert.Equal(t, "Acme", doc.ClientDetails.ClientName)
	assert.True(t, doc.Declarations.DesignerDeclared)
	assert.False(t, doc.Declarations.InspectorDeclared)
	require.Len(t, doc.InspectionItems, 2)
	assert.Equal(t, "1.1", doc.InspectionItems[0].Ref)
	assert.Equal(t, "none", doc.InspectionItems[0].Notes)
	assert.Equal(t, "2.1", doc.InspectionItems[1].Ref)
}
