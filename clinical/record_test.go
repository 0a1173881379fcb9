package clinical

import (
	"errors"
	"net/url"
	"testing"
)

func defaultFormValues() url.Values {
	vals := url.Values{}
	vals.Set(FieldHbA1c, "7.5")
	vals.Set(FieldBMI, "24.5")
	vals.Set(FieldHaemoglobin, "135")
	vals.Set(FieldNeovascularisation, "No")
	vals.Set(FieldHypertension, "Yes")
	vals.Set(FieldCardiovascular, "No")
	return vals
}

func TestDefaultRecordVector(t *testing.T) {
	vec, err := DefaultRecord().Vector()
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	want := []float64{135.0, 0, 0, 7.5, 24.5, 1}
	if len(vec) != len(want) {
		t.Fatalf("vector has %d entries, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestVectorFollowsTrainingOrder(t *testing.T) {
	rec := Record{
		Haemoglobin:              60,
		ActiveNeovascularisation: 1,
		CardiovascularDisease:    0,
		HbA1c:                    4,
		BMI:                      11,
		Hypertension:             0,
	}

	vec, err := rec.Vector()
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	want := []float64{60, 1, 0, 4, 11, 0}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestValueDispatchRejectsUnknownName(t *testing.T) {
	if _, err := (Record{}).valueOf("No.such.column"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("valueOf error = %v, want ErrUnknownField", err)
	}

	var rec Record
	if err := rec.setValue("No.such.column", 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("setValue error = %v, want ErrUnknownField", err)
	}
}

func TestParseRecordDefaults(t *testing.T) {
	rec, issues, err := ParseRecord(defaultFormValues())
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues = %+v, want none", issues)
	}
	if rec != DefaultRecord() {
		t.Errorf("record = %+v, want defaults %+v", rec, DefaultRecord())
	}
}

func TestParseRecordBinaryForms(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"Yes", 1},
		{"yes", 1},
		{"YES", 1},
		{"1", 1},
		{"No", 0},
		{"no", 0},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			vals := defaultFormValues()
			vals.Set(FieldNeovascularisation, tt.raw)

			rec, issues, err := ParseRecord(vals)
			if err != nil {
				t.Fatalf("ParseRecord: %v", err)
			}
			if len(issues) != 0 {
				t.Fatalf("issues = %+v, want none", issues)
			}
			if rec.ActiveNeovascularisation != tt.want {
				t.Errorf("neovascularisation = %d, want %d", rec.ActiveNeovascularisation, tt.want)
			}
		})
	}
}

func TestParseRecordIssues(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   string
	}{
		{"missing value", FieldHbA1c, ""},
		{"not a number", FieldBMI, "skinny"},
		{"nan literal", FieldBMI, "NaN"},
		{"below minimum", FieldHaemoglobin, "10"},
		{"above maximum", FieldHbA1c, "25"},
		{"bad binary choice", FieldHypertension, "maybe"},
		{"binary given as float", FieldCardiovascular, "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := defaultFormValues()
			if tt.raw == "" {
				vals.Del(tt.field)
			} else {
				vals.Set(tt.field, tt.raw)
			}

			_, issues, err := ParseRecord(vals)
			if err != nil {
				t.Fatalf("ParseRecord: %v", err)
			}
			if len(issues) != 1 {
				t.Fatalf("issues = %+v, want exactly one", issues)
			}
			if issues[0].Field != tt.field {
				t.Errorf("issue field = %q, want %q", issues[0].Field, tt.field)
			}
			if issues[0].Reason == "" {
				t.Error("issue has empty reason")
			}
		})
	}
}

func TestParseRecordCollectsAllIssues(t *testing.T) {
	vals := defaultFormValues()
	vals.Set(FieldHbA1c, "2.0")
	vals.Set(FieldBMI, "heavy")
	vals.Del(FieldHypertension)

	_, issues, err := ParseRecord(vals)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if len(issues) != 3 {
		t.Errorf("issues = %+v, want 3", issues)
	}
}

func TestParseRecordBoundsInclusive(t *testing.T) {
	vals := defaultFormValues()
	vals.Set(FieldHbA1c, "3.0")
	vals.Set(FieldBMI, "60.0")
	vals.Set(FieldHaemoglobin, "200")

	rec, issues, err := ParseRecord(vals)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues = %+v, want none at bounds", issues)
	}
	if rec.HbA1c != 3.0 || rec.BMI != 60.0 || rec.Haemoglobin != 200 {
		t.Errorf("record = %+v", rec)
	}
}

func TestNamed(t *testing.T) {
	named := DefaultRecord().Named()
	if len(named) != 6 {
		t.Fatalf("Named has %d entries, want 6", len(named))
	}

	order := FieldOrder()
	for i, nv := range named {
		if nv.Field != order[i] {
			t.Errorf("Named[%d].Field = %q, want %q", i, nv.Field, order[i])
		}
		if nv.Label == "" {
			t.Errorf("Named[%d] has empty label", i)
		}
	}

	if named[5].Text != "Yes" {
		t.Errorf("Hypertension text = %q, want Yes", named[5].Text)
	}
	if named[1].Text != "No" {
		t.Errorf("neovascularisation text = %q, want No", named[1].Text)
	}
	if named[0].Text != "135" {
		t.Errorf("haemoglobin text = %q, want 135", named[0].Text)
	}
}
