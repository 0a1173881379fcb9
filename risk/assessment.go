package risk

import (
	"errors"
	"fmt"
	"time"

	"rvhrisk/clinical"
	"rvhrisk/ml"
)

// Clinical business rules. These are fixed protocol constants, not tunables.
const (
	// HighRiskThreshold splits the two categories. The comparison is
	// strictly greater, so exactly 50.0% classifies as low risk.
	HighRiskThreshold = 50.0

	// HbA1cAdvisoryThreshold flags poor glycemic control in the
	// contributing-factor commentary.
	HbA1cAdvisoryThreshold = 8.0
)

const (
	CategoryHigh = "High Risk"
	CategoryLow  = "Low Risk"
)

// ErrModelUnavailable means the classifier never loaded and every
// assessment must be refused until the process restarts.
var ErrModelUnavailable = errors.New("model not loaded")

// FactorCode identifies a contributing-factor rule.
type FactorCode string

const (
	FactorActiveNeovascularisation FactorCode = "active_neovascularisation"
	FactorElevatedHbA1c            FactorCode = "elevated_hba1c"
)

const (
	msgActiveNeovascularisation = "Active Neovascularisation is a significant risk factor."
	msgElevatedHbA1c            = "Elevated HbA1c suggests poor glycemic control."

	// ReassuranceMessage is shown when the risk percentage falls below
	// the category threshold.
	ReassuranceMessage = "Patient profile suggests lower likelihood of recurrence."
)

// Factor is one display-only contributing-factor annotation. Factors never
// feed back into the model's decision.
type Factor struct {
	Code    FactorCode `json:"code"`
	Message string     `json:"message"`
}

// Assessment is the outcome of one prediction trigger.
type Assessment struct {
	RiskPercent float64   `json:"risk_percent"`
	Category    string    `json:"category"`
	Confidence  int       `json:"confidence"`
	Factors     []Factor  `json:"factors"`
	Reassuring  bool      `json:"reassuring"`
	ModelName   string    `json:"model_name"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Evaluate runs one assessment of rec against clf. A nil clf is the
// "no model available" sentinel and is refused outright. Estimation
// failures come back as descriptive errors; the caller renders them and
// stays interactive.
func Evaluate(clf ml.Classifier, rec clinical.Record) (*Assessment, error) {
	if clf == nil {
		return nil, ErrModelUnavailable
	}

	vec, err := rec.Vector()
	if err != nil {
		return nil, fmt.Errorf("assembling feature vector: %w", err)
	}

	proba, err := clf.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("estimating probability: %w", err)
	}

	riskPercent := proba * 100

	a := &Assessment{
		RiskPercent: riskPercent,
		Category:    CategoryLow,
		Confidence:  clampConfidence(riskPercent),
		Reassuring:  riskPercent < HighRiskThreshold,
		ModelName:   clf.Name(),
		EvaluatedAt: time.Now(),
	}
	if riskPercent > HighRiskThreshold {
		a.Category = CategoryHigh
	}

	if rec.ActiveNeovascularisation == 1 {
		a.Factors = append(a.Factors, Factor{
			Code:    FactorActiveNeovascularisation,
			Message: msgActiveNeovascularisation,
		})
	}
	if rec.HbA1c > HbA1cAdvisoryThreshold {
		a.Factors = append(a.Factors, Factor{
			Code:    FactorElevatedHbA1c,
			Message: msgElevatedHbA1c,
		})
	}

	return a, nil
}

// HasFactor reports whether a specific annotation rule fired.
func (a *Assessment) HasFactor(code FactorCode) bool {
	for _, f := range a.Factors {
		if f.Code == code {
			return true
		}
	}
	return false
}

func clampConfidence(riskPercent float64) int {
	if riskPercent < 0 {
		return 0
	}
	if riskPercent > 100 {
		return 100
	}
	return int(riskPercent)
}
