package provider

import (
	"context"
	"fmt"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/ensemble"
	"github.com/sjwhitworth/golearn/trees"
)

// golearnProvider backs the classical-ML strip used by the track job kind's
// lightweight re-identification step.
type golearnProvider struct{}

// NewGoLearnProvider builds the GoLearn strip. modelPath is interpreted as
// the algorithm name ("random_forest" or "decision_tree"), matching the
// teacher's LoadGoLearnModel dispatch.
func NewGoLearnProvider() Provider {
	return &golearnProvider{}
}

func (p *golearnProvider) Framework() Framework { return FrameworkGoLearn }

func (p *golearnProvider) Load(ctx context.Context, modelPath string, metadata map[string]interface{}) (Handle, error) {
	var classifier base.Classifier

	switch modelPath {
	case "random_forest":
		classifier = ensemble.NewRandomForest(100, 5)
	case "decision_tree":
		classifier = trees.NewID3DecisionTree(0.6)
	default:
		return nil, fmt.Errorf("unsupported golearn model type: %s", modelPath)
	}

	return &golearnHandle{classifier: classifier, algorithm: modelPath}, nil
}

type golearnHandle struct {
	classifier base.Classifier
	algorithm  string
}

func (h *golearnHandle) Framework() Framework { return FrameworkGoLearn }

func (h *golearnHandle) Predict(ctx context.Context, image []byte, params Params) (DetectionResult, error) {
	// golearn operates on base.FixedDataGrid rows rather than raw images.
	// No caller builds such a grid, and the classifier is not run here:
	// Predict returns an empty DetectionResult.
	_ = h.classifier
	return decodeDetections(nil, params), nil
}

func (h *golearnHandle) Close() error { return nil }

func (h *golearnHandle) SizeBytes() int64 {
	return 8 * 1024 * 1024
}
