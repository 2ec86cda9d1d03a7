package domain

// Certificate types understood by the service.
const (
	CertificateEIC        = "eic"
	CertificateEICR       = "eicr"
	CertificateMinorWorks = "minor-works"
)

// Report is the stored record backing one certificate.
type Report struct {
	ReportID       string          `json:"report_id"`
	ReportType     string          `json:"report_type" enum:"eic,eicr,minor-works"`
	Form           CertificateForm `json:"form"`
	Status         string          `json:"status" enum:"draft,completed"`
	PDFURL         string          `json:"pdf_url,omitempty"`
	PDFGeneratedAt string          `json:"pdf_generated_at,omitempty" format:"date-time"`
	PDFDocumentID  string          `json:"pdf_document_id,omitempty"`
	PDFExpiresAt   string          `json:"pdf_expires_at,omitempty"`
	StoragePath    string          `json:"storage_path,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
}

// CertificateForm is the working document for one certificate. Every
// recognised field is listed; absent values are zero values.
type CertificateForm struct {
	CertificateType   string `json:"certificateType,omitempty"`
	CertificateNumber string `json:"certificateNumber,omitempty"`

	ClientName    string `json:"clientName,omitempty"`
	ClientAddress string `json:"clientAddress,omitempty"`
	ClientPhone   string `json:"clientPhone,omitempty"`
	ClientEmail   string `json:"clientEmail,omitempty"`

	InstallationAddress  string `json:"installationAddress,omitempty"`
	InstallationPostcode string `json:"installationPostcode,omitempty"`
	InstallationDate     string `json:"installationDate,omitempty"`
	InstallationType     string `json:"installationType,omitempty"`
	DescriptionOfWork    string `json:"descriptionOfWork,omitempty"`
	ExtentOfInstallation string `json:"extentOfInstallation,omitempty"`
	NewInstallation      bool   `json:"newInstallation,omitempty"`

	BSStandard             string `json:"bsStandard,omitempty"`
	Departures             string `json:"departures,omitempty"`
	PermittedExceptions    string `json:"permittedExceptions,omitempty"`
	RiskAssessmentAttached bool   `json:"riskAssessmentAttached,omitempty"`

	SupplyVoltage           string `json:"supplyVoltage,omitempty"`
	SupplyFrequency         string `json:"supplyFrequency,omitempty"`
	PhaseConfiguration      string `json:"phaseConfiguration,omitempty"`
	EarthingArrangement     string `json:"earthingArrangement,omitempty"`
	ExternalLoopImpedance   string `json:"externalLoopImpedance,omitempty"`
	ProspectiveFaultCurrent string `json:"prospectiveFaultCurrent,omitempty"`
	SupplyPolarityConfirmed bool   `json:"supplyPolarityConfirmed,omitempty"`

	MainSwitchType       string `json:"mainSwitchType,omitempty"`
	MainSwitchRating     string `json:"mainSwitchRating,omitempty"`
	MainSwitchBSStandard string `json:"mainSwitchBsStandard,omitempty"`
	MainSwitchPoles      string `json:"mainSwitchPoles,omitempty"`
	MainSwitchLocation   string `json:"mainSwitchLocation,omitempty"`
	SupplyFuseRating     string `json:"supplyFuseRating,omitempty"`

	RcdMainSwitch   bool   `json:"rcdMainSwitch,omitempty"`
	RcdType         string `json:"rcdType,omitempty"`
	RcdRating       string `json:"rcdRating,omitempty"`
	RcdTimeDelay    string `json:"rcdTimeDelay,omitempty"`
	RcdMeasuredTime string `json:"rcdMeasuredTime,omitempty"`

	BoardReference    string `json:"boardReference,omitempty"`
	BoardLocation     string `json:"boardLocation,omitempty"`
	BoardManufacturer string `json:"boardManufacturer,omitempty"`
	BoardType         string `json:"boardType,omitempty"`
	BoardWays         string `json:"boardWays,omitempty"`
	BoardSuppliedFrom string `json:"boardSuppliedFrom,omitempty"`

	TailsSize                 string `json:"tailsSize,omitempty"`
	TailsMaterial             string `json:"tailsMaterial,omitempty"`
	EarthingConductorSize     string `json:"earthingConductorSize,omitempty"`
	EarthingConductorMaterial string `json:"earthingConductorMaterial,omitempty"`
	BondingConductorSize      string `json:"bondingConductorSize,omitempty"`
	BondingConductorMaterial  string `json:"bondingConductorMaterial,omitempty"`

	MeansOfEarthing          string `json:"meansOfEarthing,omitempty"`
	EarthElectrodeType       string `json:"earthElectrodeType,omitempty"`
	EarthElectrodeResistance string `json:"earthElectrodeResistance,omitempty"`
	BondingWater             bool   `json:"bondingWater,omitempty"`
	BondingGas               bool   `json:"bondingGas,omitempty"`
	BondingOil               bool   `json:"bondingOil,omitempty"`
	BondingStructuralSteel   bool   `json:"bondingStructuralSteel,omitempty"`
	BondingLightning         bool   `json:"bondingLightning,omitempty"`
	BondingOther             string `json:"bondingOther,omitempty"`

	ScheduleOfTests []CircuitTestRecord `json:"scheduleOfTests,omitempty"`

	TestInstrumentMake   string `json:"testInstrumentMake,omitempty"`
	TestInstrumentSerial string `json:"testInstrumentSerial,omitempty"`
	CalibrationDate      string `json:"calibrationDate,omitempty"`

	TestDate        string `json:"testDate,omitempty"`
	TestedBy        string `json:"testedBy,omitempty"`
	TestTemperature string `json:"testTemperature,omitempty"`
	TestMethod      string `json:"testMethod,omitempty"`

	BoardPolarityVerified       bool   `json:"boardPolarityVerified,omitempty"`
	BoardPhaseSequenceVerified  bool   `json:"boardPhaseSequenceVerified,omitempty"`
	BoardSPDOperational         bool   `json:"boardSpdOperational,omitempty"`
	BoardManualOperationChecked bool   `json:"boardManualOperationChecked,omitempty"`
	BoardVerificationNotes      string `json:"boardVerificationNotes,omitempty"`

	DesignerName           string `json:"designerName,omitempty"`
	DesignerSignature      string `json:"designerSignature,omitempty"`
	DesignerCompany        string `json:"designerCompany,omitempty"`
	DesignerAddress        string `json:"designerAddress,omitempty"`
	DesignerDate           string `json:"designerDate,omitempty"`
	DesignerQualifications string `json:"designerQualifications,omitempty"`

	ConstructorName      string `json:"constructorName,omitempty"`
	ConstructorSignature string `json:"constructorSignature,omitempty"`
	ConstructorCompany   string `json:"constructorCompany,omitempty"`
	ConstructorDate      string `json:"constructorDate,omitempty"`

	InspectorName         string `json:"inspectorName,omitempty"`
	InspectorSignature    string `json:"inspectorSignature,omitempty"`
	InspectorCompany      string `json:"inspectorCompany,omitempty"`
	InspectorDate         string `json:"inspectorDate,omitempty"`
	InspectorRegistration string `json:"inspectorRegistration,omitempty"`

	SameAsDesigner         bool   `json:"sameAsDesigner,omitempty"`
	NextInspectionDate     string `json:"nextInspectionDate,omitempty"`
	NextInspectionInterval string `json:"nextInspectionInterval,omitempty"`
	AdditionalComments     string `json:"additionalComments,omitempty"`

	Inspections  map[string]InspectionItem `json:"inspections,omitempty"`
	Observations []ObservationRecord       `json:"observations,omitempty"`
}

// InspectionItem is one keyed entry of the schedule of inspections.
type InspectionItem struct {
	Outcome string `json:"outcome,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// CircuitTestRecord is one row of the schedule of tests. Measurements are
// kept as entered.
type CircuitTestRecord struct {
	ID                       string  `json:"id,omitempty"`
	BoardID                  string  `json:"boardId,omitempty"`
	SourceCircuitID          *string `json:"sourceCircuitId,omitempty"`
	CircuitNumber            string  `json:"circuitNumber,omitempty"`
	CircuitDescription       string  `json:"circuitDescription,omitempty"`
	TypeOfWiring             string  `json:"typeOfWiring,omitempty"`
	ReferenceMethod          string  `json:"referenceMethod,omitempty"`
	PointsServed             string  `json:"pointsServed,omitempty"`
	LiveSize                 string  `json:"liveSize,omitempty"`
	CPCSize                  string  `json:"cpcSize,omitempty"`
	BSStandard               string  `json:"bsStandard,omitempty"`
	ProtectiveDeviceType     string  `json:"protectiveDeviceType,omitempty"`
	ProtectiveDeviceCurve    string  `json:"protectiveDeviceCurve,omitempty"`
	ProtectiveDeviceRating   string  `json:"protectiveDeviceRating,omitempty"`
	ProtectiveDeviceKaRating string  `json:"protectiveDeviceKaRating,omitempty"`
	MaxZs                    string  `json:"maxZs,omitempty"`
	RcdType                  string  `json:"rcdType,omitempty"`
	RcdRating                string  `json:"rcdRating,omitempty"`
	RingR1                   string  `json:"ringR1,omitempty"`
	RingRn                   string  `json:"ringRn,omitempty"`
	RingR2                   string  `json:"ringR2,omitempty"`
	R1R2                     string  `json:"r1r2,omitempty"`
	R2                       string  `json:"r2,omitempty"`
	InsulationTestVoltage    string  `json:"insulationTestVoltage,omitempty"`
	InsulationLiveNeutral    string  `json:"insulationLiveNeutral,omitempty"`
	InsulationLiveEarth      string  `json:"insulationLiveEarth,omitempty"`
	Polarity                 string  `json:"polarity,omitempty"`
	Zs                       string  `json:"zs,omitempty"`
	RcdOneX                  string  `json:"rcdOneX,omitempty"`
	RcdTestButton            string  `json:"rcdTestButton,omitempty"`
	AfddTest                 string  `json:"afddTest,omitempty"`
	FunctionalTesting        string  `json:"functionalTesting,omitempty"`
	Notes                    string  `json:"notes,omitempty"`
}

// ObservationRecord is one inspection finding on a report.
type ObservationRecord struct {
	ID             string `json:"id"`
	Item           string `json:"item,omitempty"`
	Description    string `json:"description,omitempty"`
	Code           string `json:"code,omitempty" enum:"C1,C2,C3,FI"`
	Location       string `json:"location,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// PhotoRecord is owned by photo storage and linked by observation id.
type PhotoRecord struct {
	ID            string `json:"id"`
	ReportID      string `json:"report_id"`
	ReportType    string `json:"report_type"`
	ObservationID string `json:"observation_id"`
	FilePath      string `json:"file_path"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Artifact is the rendered PDF reference returned by the render service.
type Artifact struct {
	PDFURL      string `json:"pdf_url"`
	DocumentID  string `json:"document_id,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	GeneratedAt string `json:"generated_at" format:"date-time"`
	StoragePath string `json:"storage_path,omitempty"`
}

// ExportAttempt tracks one user-initiated export.
type ExportAttempt struct {
	ID          string `json:"id"`
	ReportID    string `json:"report_id"`
	TemplateID  string `json:"template_id,omitempty"`
	Status      string `json:"status" enum:"preparing,generating,complete,error"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	Error       string `json:"error,omitempty"`
	RequestedBy string `json:"requested_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Terminal reports whether the attempt reached complete or error.
func (a ExportAttempt) Terminal() bool {
	return a.Status == "complete" || a.Status == "error"
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"-"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}
