package clinical

// Canonical feature column names, exactly as the classifier was trained.
const (
	FieldHaemoglobin        = "Haemoglobin"
	FieldNeovascularisation = "Active.neovascularisation"
	FieldCardiovascular     = "History.of.cardiovascular.disease"
	FieldHbA1c              = "HbA1c"
	FieldBMI                = "BMI"
	FieldHypertension       = "Hypertension"
)

// fieldOrder is the training column order. Reordering silently changes
// what each column means to the model, so it is fixed here and must not
// be derived from the form layout.
var fieldOrder = [...]string{
	FieldHaemoglobin,
	FieldNeovascularisation,
	FieldCardiovascular,
	FieldHbA1c,
	FieldBMI,
	FieldHypertension,
}

// FieldOrder returns the six column names in training order.
func FieldOrder() []string {
	out := make([]string, len(fieldOrder))
	copy(out, fieldOrder[:])
	return out
}

// FieldSpec describes one form control.
type FieldSpec struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Group   string  `json:"group"`
	Help    string  `json:"help,omitempty"`
	Binary  bool    `json:"binary"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Step    float64 `json:"step,omitempty"`
	Default float64 `json:"default"`
}

// formSpecs lists the controls in form display order, which differs from
// the training column order on purpose.
var formSpecs = []FieldSpec{
	{
		Name:    FieldHbA1c,
		Label:   "HbA1c (%)",
		Group:   "Physiological Markers",
		Help:    "Glycated Hemoglobin level.",
		Min:     3.0,
		Max:     20.0,
		Step:    0.1,
		Default: 7.5,
	},
	{
		Name:    FieldBMI,
		Label:   "BMI (kg/m²)",
		Group:   "Physiological Markers",
		Min:     10.0,
		Max:     60.0,
		Step:    0.1,
		Default: 24.5,
	},
	{
		Name:    FieldHaemoglobin,
		Label:   "Haemoglobin (g/L)",
		Group:   "Physiological Markers",
		Help:    "Check if your unit is g/L or g/dL. Code assumes input matches training scale.",
		Min:     50.0,
		Max:     200.0,
		Step:    1.0,
		Default: 135.0,
	},
	{
		Name:    FieldNeovascularisation,
		Label:   "Active Neovascularisation",
		Group:   "Clinical History",
		Help:    "Presence of active new blood vessels.",
		Binary:  true,
		Default: 0,
	},
	{
		Name:    FieldHypertension,
		Label:   "Hypertension",
		Group:   "Clinical History",
		Help:    "History of high blood pressure.",
		Binary:  true,
		Default: 1,
	},
	{
		Name:    FieldCardiovascular,
		Label:   "History of Cardiovascular Disease",
		Group:   "Clinical History",
		Binary:  true,
		Default: 0,
	},
}

// Specs returns the form controls in display order.
func Specs() []FieldSpec {
	out := make([]FieldSpec, len(formSpecs))
	copy(out, formSpecs)
	return out
}

// SpecFor looks up a control by its canonical column name.
func SpecFor(name string) (FieldSpec, bool) {
	for _, s := range formSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}
