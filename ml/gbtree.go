package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Ensemble is a binary gradient-boosted-trees classifier loaded from a JSON
// artifact. It is immutable after construction and safe for concurrent use.
type Ensemble struct {
	name         string
	version      int
	baseScore    float64
	featureNames []string
	trees        []Tree
}

type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	LeafValue   float64 `json:"leaf_value"`
	DefaultLeft bool    `json:"default_left"`
	IsLeaf      bool    `json:"is_leaf"`
}

// DimensionError reports a feature vector whose length does not match the
// number of features the model was trained on.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("feature vector has %d values, model expects %d", e.Got, e.Want)
}

type ensembleDoc struct {
	ModelName    string   `json:"model_name"`
	Version      int      `json:"version"`
	BaseScore    float64  `json:"base_score"`
	FeatureNames []string `json:"feature_names"`
	Trees        []Tree   `json:"trees"`
}

func NewEnsemble(name string, version int, baseScore float64, featureNames []string, trees []Tree) (*Ensemble, error) {
	e := &Ensemble{
		name:         name,
		version:      version,
		baseScore:    baseScore,
		featureNames: featureNames,
		trees:        trees,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func ParseEnsemble(payload []byte) (*Ensemble, error) {
	var doc ensembleDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	return NewEnsemble(doc.ModelName, doc.Version, doc.BaseScore, doc.FeatureNames, doc.Trees)
}

func LoadEnsemble(path string) (*Ensemble, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseEnsemble(payload)
}

func (e *Ensemble) validate() error {
	if len(e.featureNames) == 0 {
		return errors.New("model artifact has no feature names")
	}
	if e.baseScore <= 0 || e.baseScore >= 1 {
		return fmt.Errorf("base_score %g outside (0, 1)", e.baseScore)
	}
	if len(e.trees) == 0 {
		return errors.New("model artifact has no trees")
	}
	for ti, tree := range e.trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range tree.Nodes {
			if node.IsLeaf {
				continue
			}
			if node.FeatureIdx < 0 || node.FeatureIdx >= len(e.featureNames) {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, node.FeatureIdx)
			}
			// Children must point forward in the flat layout; this rules out cycles.
			if node.LeftChild <= ni || node.LeftChild >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid left child %d", ti, ni, node.LeftChild)
			}
			if node.RightChild <= ni || node.RightChild >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid right child %d", ti, ni, node.RightChild)
			}
		}
	}
	return nil
}

// PredictProba returns the positive-class probability for the given feature
// vector. The vector must follow the model's training column order; values
// that are NaN take each node's default direction.
func (e *Ensemble) PredictProba(features []float64) (float64, error) {
	if len(features) != len(e.featureNames) {
		return 0, &DimensionError{Want: len(e.featureNames), Got: len(features)}
	}
	margin := logit(e.baseScore)
	for _, tree := range e.trees {
		leaf, err := tree.walk(features)
		if err != nil {
			return 0, err
		}
		margin += leaf
	}
	return sigmoid(margin), nil
}

func (t Tree) walk(features []float64) (float64, error) {
	idx := 0
	for steps := 0; steps < len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.LeafValue, nil
		}
		value := features[node.FeatureIdx]
		switch {
		case math.IsNaN(value):
			if node.DefaultLeft {
				idx = node.LeftChild
			} else {
				idx = node.RightChild
			}
		case value < node.Threshold:
			idx = node.LeftChild
		default:
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}

func (e *Ensemble) Name() string {
	return e.name
}

func (e *Ensemble) ModelVersion() int {
	return e.version
}

func (e *Ensemble) NumFeatures() int {
	return len(e.featureNames)
}

func (e *Ensemble) FeatureNames() []string {
	names := make([]string, len(e.featureNames))
	copy(names, e.featureNames)
	return names
}

func (e *Ensemble) NumTrees() int {
	return len(e.trees)
}

func (e *Ensemble) Save(path string) error {
	doc := ensembleDoc{
		ModelName:    e.name,
		Version:      e.version,
		BaseScore:    e.baseScore,
		FeatureNames: e.FeatureNames(),
		Trees:        e.trees,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
