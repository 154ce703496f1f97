package provider

import (
	"context"
	"fmt"

	onnxruntime "github.com/yalue/onnxruntime_go"
)

// onnxProvider loads models through ONNX Runtime. It is the primary
// detect/segment provider strip.
type onnxProvider struct {
	sharedLibPath string
	initialized   bool
}

// NewONNXProvider builds the ONNX strip. sharedLibPath points at
// libonnxruntime.so on the host.
func NewONNXProvider(sharedLibPath string) Provider {
	return &onnxProvider{sharedLibPath: sharedLibPath}
}

func (p *onnxProvider) Framework() Framework { return FrameworkONNX }

func (p *onnxProvider) Load(ctx context.Context, modelPath string, metadata map[string]interface{}) (Handle, error) {
	if !p.initialized {
		if p.sharedLibPath != "" {
			onnxruntime.SetSharedLibraryPath(p.sharedLibPath)
		}
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
		p.initialized = true
	}

	session, err := onnxruntime.NewSession(modelPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	inputs, err := session.GetInputInfo()
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("get onnx input info: %w", err)
	}
	outputs, err := session.GetOutputInfo()
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("get onnx output info: %w", err)
	}

	return &onnxHandle{
		session: session,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

type onnxHandle struct {
	session *onnxruntime.Session
	inputs  []onnxruntime.InputOutputInfo
	outputs []onnxruntime.InputOutputInfo
}

func (h *onnxHandle) Framework() Framework { return FrameworkONNX }

func (h *onnxHandle) Predict(ctx context.Context, image []byte, params Params) (DetectionResult, error) {
	shape := make([]int64, 0)
	if len(h.inputs) > 0 {
		shape = h.inputs[0].Dimensions
	}

	inputTensor, err := onnxruntime.NewTensor(shape, decodeToFloat32(image))
	if err != nil {
		return DetectionResult{}, fmt.Errorf("build onnx input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	rawOutputs, err := h.session.Run([]onnxruntime.Value{inputTensor})
	if err != nil {
		return DetectionResult{}, fmt.Errorf("onnx session run: %w", err)
	}

	return decodeDetections(rawOutputs, params), nil
}

func (h *onnxHandle) Close() error {
	return h.session.Destroy()
}

func (h *onnxHandle) SizeBytes() int64 {
	var total int64
	for _, info := range h.inputs {
		total += dimsElementCount(info.Dimensions) * 4
	}
	for _, info := range h.outputs {
		total += dimsElementCount(info.Dimensions) * 4
	}
	return total
}

func dimsElementCount(dims []int64) int64 {
	count := int64(1)
	for _, d := range dims {
		if d > 0 {
			count *= d
		}
	}
	return count
}
