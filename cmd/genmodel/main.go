package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"rvhrisk/clinical"
	"rvhrisk/ml"
)

func main() {
	outPath := flag.String("out", "models/rvh_gbt.json", "artifact output path")
	name := flag.String("name", "rvh-gbt-demo", "model name")
	version := flag.Int("version", 1, "model version")
	flag.Parse()

	model, err := ml.NewEnsemble(*name, *version, 0.35, clinical.FieldOrder(), demoTrees())
	if err != nil {
		log.Fatalf("failed to build ensemble: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}
	if err := model.Save(*outPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	probability, err := defaultProbability(model)
	if err != nil {
		log.Fatalf("failed to score default record: %v", err)
	}

	fmt.Printf("model saved to %s\n", *outPath)
	fmt.Printf("default patient record scores %.1f%% recurrence probability\n", probability*100)
}

// demoTrees hand-authors one stump per clinical field. The leaf weights are
// illustrative, chosen so textbook high-risk profiles land above 50% and the
// default record lands well below it. This is not a trained model.
func demoTrees() []ml.Tree {
	return []ml.Tree{
		// Active neovascularisation is the dominant signal.
		stump(1, 0.5, -0.90, 1.10),
		// HbA1c above 8% marks poor glycaemic control.
		stump(3, 8.0, -0.45, 0.65),
		// Low haemoglobin raises the score.
		stump(0, 110.0, 0.50, -0.30),
		// Hypertension.
		stump(5, 0.5, -0.15, 0.20),
		// Obesity.
		stump(4, 30.0, -0.10, 0.25),
		// Cardiovascular history.
		stump(2, 0.5, -0.05, 0.30),
	}
}

// stump builds a single-split tree: feature < threshold goes left.
func stump(featureIdx int, threshold, leftLeaf, rightLeaf float64) ml.Tree {
	return ml.Tree{Nodes: []ml.TreeNode{
		{FeatureIdx: featureIdx, Threshold: threshold, LeftChild: 1, RightChild: 2, DefaultLeft: true},
		{IsLeaf: true, LeafValue: leftLeaf},
		{IsLeaf: true, LeafValue: rightLeaf},
	}}
}

func defaultProbability(model *ml.Ensemble) (float64, error) {
	vector, err := clinical.DefaultRecord().Vector()
	if err != nil {
		return 0, err
	}
	return model.PredictProba(vector)
}
