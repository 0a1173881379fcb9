package ml

// Classifier is the probability-estimation surface of a loaded binary model.
type Classifier interface {
	PredictProba(features []float64) (float64, error)
	NumFeatures() int
	Name() string
}
