package provider

import (
	"context"
	"fmt"

	tf "github.com/galeone/tensorflow/tensorflow/go"
)

// tensorflowProvider loads TensorFlow SavedModel directories.
type tensorflowProvider struct {
	tags []string
}

// NewTensorFlowProvider builds the TensorFlow strip, using the "serve" tag
// set the way SavedModel exports are normally served.
func NewTensorFlowProvider() Provider {
	return &tensorflowProvider{tags: []string{"serve"}}
}

func (p *tensorflowProvider) Framework() Framework { return FrameworkTensorFlow }

func (p *tensorflowProvider) Load(ctx context.Context, modelPath string, metadata map[string]interface{}) (Handle, error) {
	saved, err := tf.LoadSavedModel(modelPath, p.tags, nil)
	if err != nil {
		return nil, fmt.Errorf("load tensorflow saved model: %w", err)
	}
	return &tensorflowHandle{model: saved}, nil
}

type tensorflowHandle struct {
	model *tf.SavedModel
}

func (h *tensorflowHandle) Framework() Framework { return FrameworkTensorFlow }

func (h *tensorflowHandle) Predict(ctx context.Context, image []byte, params Params) (DetectionResult, error) {
	pixels := decodeToFloat32(image)

	inputTensor, err := tf.NewTensor([][]float32{pixels})
	if err != nil {
		return DetectionResult{}, fmt.Errorf("build tensorflow input tensor: %w", err)
	}

	inputOp := h.model.Graph.Operation("serving_default_input")
	outputOp := h.model.Graph.Operation("StatefulPartitionedCall")
	if inputOp == nil || outputOp == nil {
		return DetectionResult{}, fmt.Errorf("tensorflow graph missing expected signature operations")
	}

	results, err := h.model.Session.Run(
		map[tf.Output]*tf.Tensor{inputOp.Output(0): inputTensor},
		[]tf.Output{outputOp.Output(0)},
		nil,
	)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("tensorflow session run: %w", err)
	}

	return decodeDetections(results, params), nil
}

func (h *tensorflowHandle) Close() error {
	return h.model.Session.Close()
}

func (h *tensorflowHandle) SizeBytes() int64 {
	// SavedModel footprint isn't introspectable without walking the graph
	// def; this is a coarse, fixed estimate that the model cache counts
	// against its byte bound like any other handle's size.
	return 64 * 1024 * 1024
}
