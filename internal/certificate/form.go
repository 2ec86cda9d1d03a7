package certificate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"certline/internal/domain"
)

var (
	knownOnce sync.Once
	knownKeys map[string]struct{}
)

// DecodeForm parses a JSON working document. Unrecognised top-level keys
// are reported as warnings and otherwise ignored.
func DecodeForm(data []byte) (domain.CertificateForm, []string, error) {
	var form domain.CertificateForm
	if len(strings.TrimSpace(string(data))) == 0 {
		return form, nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return form, nil, fmt.Errorf("invalid form json: %w", err)
	}
	if err := json.Unmarshal(data, &form); err != nil {
		return form, nil, fmt.Errorf("invalid form json: %w", err)
	}
	return form, UnknownFields(raw), nil
}

// UnknownFields returns a sorted warning per key that has no form field.
func UnknownFields(raw map[string]json.RawMessage) []string {
	known := formKeys()
	var unknown []string
	for k := range raw {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	warnings := make([]string, 0, len(unknown))
	for _, k := range unknown {
		warnings = append(warnings, fmt.Sprintf("unknown field %q", k))
	}
	return warnings
}

func formKeys() map[string]struct{} {
	knownOnce.Do(func() {
		knownKeys = map[string]struct{}{}
		t := reflect.TypeOf(domain.CertificateForm{})
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			name, _, _ := strings.Cut(tag, ",")
			if name == "" || name == "-" {
				continue
			}
			knownKeys[name] = struct{}{}
		}
	})
	return knownKeys
}
