package clinical

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownField reports a naming mismatch between the field table and the
// record layout. It indicates an internal defect, not a user input error.
var ErrUnknownField = errors.New("clinical: unknown field name")

// Record is one patient feature record. It is built fresh per request and
// discarded after use.
type Record struct {
	Haemoglobin              float64 `json:"haemoglobin"`
	ActiveNeovascularisation int     `json:"active_neovascularisation"`
	CardiovascularDisease    int     `json:"history_of_cardiovascular_disease"`
	HbA1c                    float64 `json:"hba1c"`
	BMI                      float64 `json:"bmi"`
	Hypertension             int     `json:"hypertension"`
}

// FieldIssue is a user-correctable problem with one submitted field.
type FieldIssue struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// NamedValue is one record entry with its display form, in training order.
type NamedValue struct {
	Field string  `json:"field"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// DefaultRecord returns the form defaults.
func DefaultRecord() Record {
	return Record{
		Haemoglobin:              135.0,
		ActiveNeovascularisation: 0,
		CardiovascularDisease:    0,
		HbA1c:                    7.5,
		BMI:                      24.5,
		Hypertension:             1,
	}
}

func (r Record) valueOf(name string) (float64, error) {
	switch name {
	case FieldHaemoglobin:
		return r.Haemoglobin, nil
	case FieldNeovascularisation:
		return float64(r.ActiveNeovascularisation), nil
	case FieldCardiovascular:
		return float64(r.CardiovascularDisease), nil
	case FieldHbA1c:
		return r.HbA1c, nil
	case FieldBMI:
		return r.BMI, nil
	case FieldHypertension:
		return float64(r.Hypertension), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

func (r *Record) setValue(name string, v float64) error {
	switch name {
	case FieldHaemoglobin:
		r.Haemoglobin = v
	case FieldNeovascularisation:
		r.ActiveNeovascularisation = int(v)
	case FieldCardiovascular:
		r.CardiovascularDisease = int(v)
	case FieldHbA1c:
		r.HbA1c = v
	case FieldBMI:
		r.BMI = v
	case FieldHypertension:
		r.Hypertension = int(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// Vector assembles the six values in training column order. An order entry
// that does not match a record field is reported, never silently skipped.
func (r Record) Vector() ([]float64, error) {
	out := make([]float64, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		v, err := r.valueOf(name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Named returns the record as ordered name/value pairs for the input
// summary display.
func (r Record) Named() []NamedValue {
	out := make([]NamedValue, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		v, err := r.valueOf(name)
		if err != nil {
			continue
		}
		spec, _ := SpecFor(name)
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if spec.Binary {
			text = yesNo(int(v))
		}
		out = append(out, NamedValue{Field: name, Label: spec.Label, Value: v, Text: text})
	}
	return out
}

// ParseRecord translates submitted form values into a Record. Yes/No style
// choices map to 1/0; numeric fields are bounds-checked against their specs.
// Issues are user-correctable; the error return is reserved for internal
// naming defects.
func ParseRecord(values url.Values) (Record, []FieldIssue, error) {
	var rec Record
	var issues []FieldIssue

	for _, spec := range formSpecs {
		raw := strings.TrimSpace(values.Get(spec.Name))
		if raw == "" {
			issues = append(issues, FieldIssue{Field: spec.Name, Value: raw, Reason: "value is required"})
			continue
		}

		var v float64
		if spec.Binary {
			b, ok := parseBinary(raw)
			if !ok {
				issues = append(issues, FieldIssue{Field: spec.Name, Value: raw, Reason: "must be Yes or No"})
				continue
			}
			v = float64(b)
		} else {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				issues = append(issues, FieldIssue{Field: spec.Name, Value: raw, Reason: "is not a number"})
				continue
			}
			if f < spec.Min || f > spec.Max {
				issues = append(issues, FieldIssue{
					Field:  spec.Name,
					Value:  raw,
					Reason: fmt.Sprintf("must be between %g and %g", spec.Min, spec.Max),
				})
				continue
			}
			v = f
		}

		if err := rec.setValue(spec.Name, v); err != nil {
			return Record{}, nil, err
		}
	}

	return rec, issues, nil
}

func parseBinary(s string) (int, bool) {
	switch {
	case strings.EqualFold(s, "yes"), s == "1":
		return 1, true
	case strings.EqualFold(s, "no"), s == "0":
		return 0, true
	}
	return 0, false
}

func yesNo(v int) string {
	if v == 1 {
		return "Yes"
	}
	return "No"
}
