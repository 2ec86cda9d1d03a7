package payload

import "certline/internal/photos"

// Sections lists every top-level key of Document in template order.
var Sections = []string{
	"metadata",
	"client_details",
	"installation_details",
	"standards_compliance",
	"supply_characteristics",
	"main_protective_device",
	"rcd_details",
	"distribution_board",
	"cables",
	"earthing_bonding",
	"schedule_of_tests",
	"test_instrument_details",
	"test_information",
	"distribution_board_verification",
	"designer",
	"constructor",
	"inspector",
	"declarations",
	"observations",
	"inspection_items",
}

// Document is the fixed-shape export sent to the render template. No field
// is omitted when empty.
type Document struct {
	Metadata                      Metadata                       `json:"metadata"`
	ClientDetails                 ClientDetails                  `json:"client_details"`
	InstallationDetails           InstallationDetails            `json:"installation_details"`
	StandardsCompliance           StandardsCompliance            `json:"standards_compliance"`
	SupplyCharacteristics         SupplyCharacteristics          `json:"supply_characteristics"`
	MainProtectiveDevice          MainProtectiveDevice           `json:"main_protective_device"`
	RCDDetails                    RCDDetails                     `json:"rcd_details"`
	DistributionBoard             DistributionBoard              `json:"distribution_board"`
	Cables                        Cables                         `json:"cables"`
	EarthingBonding               EarthingBonding                `json:"earthing_bonding"`
	ScheduleOfTests               []TestRow                      `json:"schedule_of_tests"`
	TestInstrumentDetails         TestInstrumentDetails          `json:"test_instrument_details"`
	TestInformation               TestInformation                `json:"test_information"`
	DistributionBoardVerification DistributionBoardVerification  `json:"distribution_board_verification"`
	Designer                      Designer                       `json:"designer"`
	Constructor                   Constructor                    `json:"constructor"`
	Inspector                     Inspector                      `json:"inspector"`
	Declarations                  Declarations                   `json:"declarations"`
	Observations                  []photos.ObservationWithPhotos `json:"observations"`
	InspectionItems               []InspectionEntry              `json:"inspection_items"`
}

type Metadata struct {
	ReportID          string `json:"report_id"`
	CertificateType   string `json:"certificate_type"`
	CertificateNumber string `json:"certificate_number"`
	GeneratedAt       string `json:"generated_at"`
	IsFullyComplete   bool   `json:"is_fully_complete"`
}

type ClientDetails struct {
	ClientName string `json:"client_name"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type InstallationDetails struct {
	Address              string `json:"address"`
	Postcode             string `json:"postcode"`
	InstallationDate     string `json:"installation_date"`
	InstallationType     string `json:"installation_type"`
	DescriptionOfWork    string `json:"description_of_work"`
	ExtentOfInstallation string `json:"extent_of_installation"`
	NewInstallation      bool   `json:"new_installation"`
}

type StandardsCompliance struct {
	BSStandard             string `json:"bs_standard"`
	Departures             string `json:"departures"`
	PermittedExceptions    string `json:"permitted_exceptions"`
	RiskAssessmentAttached bool   `json:"risk_assessment_attached"`
}

type SupplyCharacteristics struct {
	NominalVoltage          string `json:"nominal_voltage"`
	NominalFrequency        string `json:"nominal_frequency"`
	PhaseConfiguration      string `json:"phase_configuration"`
	EarthingArrangement     string `json:"earthing_arrangement"`
	ExternalLoopImpedance   string `json:"external_loop_impedance"`
	ProspectiveFaultCurrent string `json:"prospective_fault_current"`
	PolarityConfirmed       bool   `json:"polarity_confirmed"`
}

type MainProtectiveDevice struct {
	Type             string `json:"type"`
	Rating           string `json:"rating"`
	BSStandard       string `json:"bs_standard"`
	Poles            string `json:"poles"`
	Location         string `json:"location"`
	SupplyFuseRating string `json:"supply_fuse_rating"`
}

type RCDDetails struct {
	MainSwitchIsRCD bool   `json:"main_switch_is_rcd"`
	Type            string `json:"type"`
	Rating          string `json:"rating"`
	TimeDelay       string `json:"time_delay"`
	MeasuredTime    string `json:"measured_time"`
}

type DistributionBoard struct {
	Reference    string `json:"reference"`
	Location     string `json:"location"`
	Manufacturer string `json:"manufacturer"`
	Type         string `json:"type"`
	Ways         string `json:"ways"`
	SuppliedFrom string `json:"supplied_from"`
}

type Cables struct {
	TailsSize                 string `json:"tails_size"`
	TailsMaterial             string `json:"tails_material"`
	EarthingConductorSize     string `json:"earthing_conductor_size"`
	EarthingConductorMaterial string `json:"earthing_conductor_material"`
	BondingConductorSize      string `json:"bonding_conductor_size"`
	BondingConductorMaterial  string `json:"bonding_conductor_material"`
}

type EarthingBonding struct {
	MeansOfEarthing          string `json:"means_of_earthing"`
	EarthElectrodeType       string `json:"earth_electrode_type"`
	EarthElectrodeResistance string `json:"earth_electrode_resistance"`
	Water                    bool   `json:"water"`
	Gas                      bool   `json:"gas"`
	Oil                      bool   `json:"oil"`
	StructuralSteel          bool   `json:"structural_steel"`
	LightningProtection      bool   `json:"lightning_protection"`
	Other                    string `json:"other"`
}

// TestRow is one schedule-of-tests line. Absent measurements are "N/A".
type TestRow struct {
	CircuitNumber            string  `json:"circuit_number"`
	CircuitDescription       string  `json:"circuit_description"`
	BoardID                  string  `json:"board_id"`
	SourceCircuitID          *string `json:"source_circuit_id"`
	TypeOfWiring             string  `json:"type_of_wiring"`
	ReferenceMethod          string  `json:"reference_method"`
	PointsServed             string  `json:"points_served"`
	LiveSize                 string  `json:"live_size"`
	CPCSize                  string  `json:"cpc_size"`
	BSStandard               string  `json:"bs_standard"`
	ProtectiveDeviceType     string  `json:"protective_device_type"`
	ProtectiveDeviceCurve    string  `json:"protective_device_curve"`
	ProtectiveDeviceRating   string  `json:"protective_device_rating"`
	ProtectiveDeviceKaRating string  `json:"protective_device_ka_rating"`
	MaxZs                    string  `json:"max_zs"`
	RCDType                  string  `json:"rcd_type"`
	RCDRating                string  `json:"rcd_rating"`
	RingR1                   string  `json:"ring_r1"`
	RingRn                   string  `json:"ring_rn"`
	RingR2                   string  `json:"ring_r2"`
	R1R2                     string  `json:"r1_r2"`
	R2                       string  `json:"r2"`
	InsulationTestVoltage    string  `json:"insulation_test_voltage"`
	InsulationLiveNeutral    string  `json:"insulation_live_neutral"`
	InsulationLiveEarth      string  `json:"insulation_live_earth"`
	Polarity                 string  `json:"polarity"`
	Zs                       string  `json:"zs"`
	RCDOneX                  string  `json:"rcd_one_x"`
	RCDTestButton            string  `json:"rcd_test_button"`
	AFDDTest                 string  `json:"afdd_test"`
	FunctionalTesting        string  `json:"functional_testing"`
	Notes                    string  `json:"notes"`
}

type TestInstrumentDetails struct {
	Make            string `json:"make"`
	SerialNumber    string `json:"serial_number"`
	CalibrationDate string `json:"calibration_date"`
}

type TestInformation struct {
	TestDate    string `json:"test_date"`
	TestedBy    string `json:"tested_by"`
	Temperature string `json:"temperature"`
	Method      string `json:"method"`
}

type DistributionBoardVerification struct {
	PolarityVerified       bool   `json:"polarity_verified"`
	PhaseSequenceVerified  bool   `json:"phase_sequence_verified"`
	SPDOperational         bool   `json:"spd_operational"`
	ManualOperationChecked bool   `json:"manual_operation_checked"`
	Notes                  string `json:"notes"`
}

type Designer struct {
	Name           string `json:"name"`
	Signature      string `json:"signature"`
	Company        string `json:"company"`
	Address        string `json:"address"`
	Date           string `json:"date"`
	Qualifications string `json:"qualifications"`
}

type Constructor struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Company   string `json:"company"`
	Date      string `json:"date"`
}

type Inspector struct {
	Name         string `json:"name"`
	Signature    string `json:"signature"`
	Company      string `json:"company"`
	Date         string `json:"date"`
	Registration string `json:"registration"`
}

type Declarations struct {
	DesignerDeclared       bool   `json:"designer_declared"`
	ConstructorDeclared    bool   `json:"constructor_declared"`
	InspectorDeclared      bool   `json:"inspector_declared"`
	SameAsDesigner         bool   `json:"same_as_designer"`
	NextInspectionDate     string `json:"next_inspection_date"`
	NextInspectionInterval string `json:"next_inspection_interval"`
	AdditionalComments     string `json:"additional_comments"`
}

type InspectionEntry struct {
	Ref     string `json:"ref"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}
