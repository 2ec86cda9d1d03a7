// Package payload normalizes a certificate form into the document the
// remote PDF template renders.
package payload

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"certline/internal/certificate"
	"certline/internal/domain"
	"certline/internal/photos"
)

// NotApplicable fills absent schedule-of-tests measurements.
const NotApplicable = "N/A"

// PhotoAttacher resolves observation photos for a report.
type PhotoAttacher interface {
	Attach(ctx context.Context, observations []domain.ObservationRecord, reportID string) ([]photos.ObservationWithPhotos, error)
}

// Builder assembles Documents. Photos is required when forms carry observations.
type Builder struct {
	Photos PhotoAttacher
	Now    func() time.Time
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build maps form into a fully keyed Document for reportID.
func (b Builder) Build(ctx context.Context, form domain.CertificateForm, reportID string) (Document, error) {
	observations := []photos.ObservationWithPhotos{}
	if len(form.Observations) > 0 {
		attached, err := b.Photos.Attach(ctx, form.Observations, reportID)
		if err != nil {
			return Document{}, err
		}
		observations = attached
	}
	status := certificate.Evaluate(form)

	doc := Document{
		Metadata: Metadata{
			ReportID:          reportID,
			CertificateType:   form.CertificateType,
			CertificateNumber: form.CertificateNumber,
			GeneratedAt:       b.now().UTC().Format(time.RFC3339),
			IsFullyComplete:   status.IsFullyComplete,
		},
		ClientDetails: ClientDetails{
			ClientName: form.ClientName,
			Address:    form.ClientAddress,
			Phone:      form.ClientPhone,
			Email:      form.ClientEmail,
		},
		InstallationDetails: InstallationDetails{
			Address:              form.InstallationAddress,
			Postcode:             form.InstallationPostcode,
			InstallationDate:     form.InstallationDate,
			InstallationType:     form.InstallationType,
			DescriptionOfWork:    form.DescriptionOfWork,
			ExtentOfInstallation: form.ExtentOfInstallation,
			NewInstallation:      form.NewInstallation,
		},
		StandardsCompliance: StandardsCompliance{
			BSStandard:             form.BSStandard,
			Departures:             form.Departures,
			PermittedExceptions:    form.PermittedExceptions,
			RiskAssessmentAttached: form.RiskAssessmentAttached,
		},
		SupplyCharacteristics: SupplyCharacteristics{
			NominalVoltage:          form.SupplyVoltage,
			NominalFrequency:        form.SupplyFrequency,
			PhaseConfiguration:      form.PhaseConfiguration,
			EarthingArrangement:     form.EarthingArrangement,
			ExternalLoopImpedance:   form.ExternalLoopImpedance,
			ProspectiveFaultCurrent: form.ProspectiveFaultCurrent,
			PolarityConfirmed:       form.SupplyPolarityConfirmed,
		},
		MainProtectiveDevice: MainProtectiveDevice{
			Type:             form.MainSwitchType,
			Rating:           form.MainSwitchRating,
			BSStandard:       form.MainSwitchBSStandard,
			Poles:            form.MainSwitchPoles,
			Location:         form.MainSwitchLocation,
			SupplyFuseRating: form.SupplyFuseRating,
		},
		RCDDetails: RCDDetails{
			MainSwitchIsRCD: form.RcdMainSwitch,
			Type:            form.RcdType,
			Rating:          form.RcdRating,
			TimeDelay:       form.RcdTimeDelay,
			MeasuredTime:    form.RcdMeasuredTime,
		},
		DistributionBoard: DistributionBoard{
			Reference:    form.BoardReference,
			Location:     form.BoardLocation,
			Manufacturer: form.BoardManufacturer,
			Type:         form.BoardType,
			Ways:         form.BoardWays,
			SuppliedFrom: form.BoardSuppliedFrom,
		},
		Cables: Cables{
			TailsSize:                 form.TailsSize,
			TailsMaterial:             form.TailsMaterial,
			EarthingConductorSize:     form.EarthingConductorSize,
			EarthingConductorMaterial: form.EarthingConductorMaterial,
			BondingConductorSize:      form.BondingConductorSize,
			BondingConductorMaterial:  form.BondingConductorMaterial,
		},
		EarthingBonding: EarthingBonding{
			MeansOfEarthing:          form.MeansOfEarthing,
			EarthElectrodeType:       form.EarthElectrodeType,
			EarthElectrodeResistance: form.EarthElectrodeResistance,
			Water:                    form.BondingWater,
			Gas:                      form.BondingGas,
			Oil:                      form.BondingOil,
			StructuralSteel:          form.BondingStructuralSteel,
			LightningProtection:      form.BondingLightning,
			Other:                    form.BondingOther,
		},
		ScheduleOfTests: testRows(form.ScheduleOfTests),
		TestInstrumentDetails: TestInstrumentDetails{
			Make:            form.TestInstrumentMake,
			SerialNumber:    form.TestInstrumentSerial,
			CalibrationDate: form.CalibrationDate,
		},
		TestInformation: TestInformation{
			TestDate:    form.TestDate,
			TestedBy:    form.TestedBy,
			Temperature: form.TestTemperature,
			Method:      form.TestMethod,
		},
		DistributionBoardVerification: DistributionBoardVerification{
			PolarityVerified:       form.BoardPolarityVerified,
			PhaseSequenceVerified:  form.BoardPhaseSequenceVerified,
			SPDOperational:         form.BoardSPDOperational,
			ManualOperationChecked: form.BoardManualOperationChecked,
			Notes:                  form.BoardVerificationNotes,
		},
		Designer: Designer{
			Name:           form.DesignerName,
			Signature:      form.DesignerSignature,
			Company:        form.DesignerCompany,
			Address:        form.DesignerAddress,
			Date:           form.DesignerDate,
			Qualifications: form.DesignerQualifications,
		},
		Constructor: Constructor{
			Name:      form.ConstructorName,
			Signature: form.ConstructorSignature,
			Company:   form.ConstructorCompany,
			Date:      form.ConstructorDate,
		},
		Inspector: Inspector{
			Name:         form.InspectorName,
			Signature:    form.InspectorSignature,
			Company:      form.InspectorCompany,
			Date:         form.InspectorDate,
			Registration: form.InspectorRegistration,
		},
		Declarations: Declarations{
			DesignerDeclared:       present(form.DesignerName) && present(form.DesignerSignature),
			ConstructorDeclared:    present(form.ConstructorName) && present(form.ConstructorSignature),
			InspectorDeclared:      present(form.InspectorName) && present(form.InspectorSignature),
			SameAsDesigner:         form.SameAsDesigner,
			NextInspectionDate:     form.NextInspectionDate,
			NextInspectionInterval: form.NextInspectionInterval,
			AdditionalComments:     form.AdditionalComments,
		},
		Observations:    observations,
		InspectionItems: inspectionEntries(form.Inspections),
	}
	return doc, nil
}

// Preview returns the indented JSON of the document for form.
func (b Builder) Preview(ctx context.Context, form domain.CertificateForm, reportID string) ([]byte, error) {
	doc, err := b.Build(ctx, form, reportID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

func testRows(records []domain.CircuitTestRecord) []TestRow {
	rows := make([]TestRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, TestRow{
			CircuitNumber:            na(r.CircuitNumber),
			CircuitDescription:       na(r.CircuitDescription),
			BoardID:                  na(r.BoardID),
			SourceCircuitID:          nullable(r.SourceCircuitID),
			TypeOfWiring:             na(r.TypeOfWiring),
			ReferenceMethod:          na(r.ReferenceMethod),
			PointsServed:             na(r.PointsServed),
			LiveSize:                 na(r.LiveSize),
			CPCSize:                  na(r.CPCSize),
			BSStandard:               na(r.BSStandard),
			ProtectiveDeviceType:     na(r.ProtectiveDeviceType),
			ProtectiveDeviceCurve:    na(r.ProtectiveDeviceCurve),
			ProtectiveDeviceRating:   na(r.ProtectiveDeviceRating),
			ProtectiveDeviceKaRating: na(r.ProtectiveDeviceKaRating),
			MaxZs:                    na(r.MaxZs),
			RCDType:                  na(r.RcdType),
			RCDRating:                na(r.RcdRating),
			RingR1:                   na(r.RingR1),
			RingRn:                   na(r.RingRn),
			RingR2:                   na(r.RingR2),
			R1R2:                     na(r.R1R2),
			R2:                       na(r.R2),
			InsulationTestVoltage:    na(r.InsulationTestVoltage),
			InsulationLiveNeutral:    na(r.InsulationLiveNeutral),
			InsulationLiveEarth:      na(r.InsulationLiveEarth),
			Polarity:                 na(r.Polarity),
			Zs:                       na(r.Zs),
			RCDOneX:                  na(r.RcdOneX),
			RCDTestButton:            na(r.RcdTestButton),
			AFDDTest:                 na(r.AfddTest),
			FunctionalTesting:        na(r.FunctionalTesting),
			Notes:                    na(r.Notes),
		})
	}
	return rows
}

func inspectionEntries(items map[string]domain.InspectionItem) []InspectionEntry {
	refs := make([]string, 0, len(items))
	for ref := range items {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	out := make([]InspectionEntry, 0, len(refs))
	for _, ref := range refs {
		out = append(out, InspectionEntry{Ref: ref, Outcome: items[ref].Outcome, Notes: items[ref].Notes})
	}
	return out
}

func na(v string) string {
	if strings.TrimSpace(v) == "" {
		return NotApplicable
	}
	return v
}

func nullable(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := *v
	return &s
}

func present(v string) bool {
	return strings.TrimSpace(v) != ""
}
