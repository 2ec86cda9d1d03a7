// Package certificate derives readiness state from a certificate form.
package certificate

import (
	"strings"

	"certline/internal/domain"
)

// Composite is the overall readiness of a certificate.
type Composite string

const (
	Incomplete      Composite = "incomplete"
	ReadyToGenerate Composite = "ready-to-generate"
	FullyComplete   Composite = "fully-complete"
)

// Status is a projection of a form and must be recomputed when the form changes.
type Status struct {
	HasInstallationDetails bool      `json:"has_installation_details"`
	HasDeclarations        bool      `json:"has_declarations"`
	HasInspections         bool      `json:"has_inspections"`
	HasTestResults         bool      `json:"has_test_results"`
	CanGenerate            bool      `json:"can_generate"`
	IsFullyComplete        bool      `json:"is_fully_complete"`
	Composite              Composite `json:"composite" enum:"incomplete,ready-to-generate,fully-complete"`
	Missing                []string  `json:"missing"`
}

type requiredField struct {
	label string
	value func(domain.CertificateForm) string
}

var installationFields = []requiredField{
	{"client name", func(f domain.CertificateForm) string { return f.ClientName }},
	{"installation address", func(f domain.CertificateForm) string { return f.InstallationAddress }},
	{"installation date", func(f domain.CertificateForm) string { return f.InstallationDate }},
}

var declarationFields = []requiredField{
	{"designer name", func(f domain.CertificateForm) string { return f.DesignerName }},
	{"designer signature", func(f domain.CertificateForm) string { return f.DesignerSignature }},
	{"constructor name", func(f domain.CertificateForm) string { return f.ConstructorName }},
	{"constructor signature", func(f domain.CertificateForm) string { return f.ConstructorSignature }},
	{"inspector name", func(f domain.CertificateForm) string { return f.InspectorName }},
	{"inspector signature", func(f domain.CertificateForm) string { return f.InspectorSignature }},
}

// Evaluate computes the readiness facets of a form.
func Evaluate(form domain.CertificateForm) Status {
	missing := []string{}
	installation := checkFields(form, installationFields, &missing)
	declarations := checkFields(form, declarationFields, &missing)
	inspections := len(form.Inspections) > 0
	if !inspections {
		missing = append(missing, "inspections")
	}
	tests := len(form.ScheduleOfTests) > 0
	if !tests {
		missing = append(missing, "schedule of tests")
	}

	st := Status{
		HasInstallationDetails: installation,
		HasDeclarations:        declarations,
		HasInspections:         inspections,
		HasTestResults:         tests,
		Missing:                missing,
	}
	st.CanGenerate = installation && declarations
	st.IsFullyComplete = st.CanGenerate && inspections && tests
	switch {
	case st.IsFullyComplete:
		st.Composite = FullyComplete
	case st.CanGenerate:
		st.Composite = ReadyToGenerate
	default:
		st.Composite = Incomplete
	}
	return st
}

// MissingForGeneration lists only the fields that block CanGenerate.
func (s Status) MissingForGeneration() []string {
	var out []string
	for _, m := range s.Missing {
		if m == "inspections" || m == "schedule of tests" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func checkFields(form domain.CertificateForm, fields []requiredField, missing *[]string) bool {
	ok := true
	for _, f := range fields {
		if strings.TrimSpace(f.value(form)) == "" {
			ok = false
			*missing = append(*missing, f.label)
		}
	}
	return ok
}
