package provider

import (
	"context"
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gorgoniaProvider backs a small native-Go feedforward classifier head,
// used as the lightweight alternate framework alongside ONNX.
type gorgoniaProvider struct{}

// NewGorgoniaProvider builds the Gorgonia strip.
func NewGorgoniaProvider() Provider {
	return &gorgoniaProvider{}
}

func (p *gorgoniaProvider) Framework() Framework { return FrameworkGorgonia }

func (p *gorgoniaProvider) Load(ctx context.Context, modelPath string, metadata map[string]interface{}) (Handle, error) {
	g := gorgonia.NewGraph()

	x := gorgonia.NewTensor(g, tensor.Float32, 2, gorgonia.WithShape(1, 784), gorgonia.WithName("x"))
	w1 := gorgonia.NewTensor(g, tensor.Float32, 2, gorgonia.WithShape(784, 128), gorgonia.WithName("w1"))
	b1 := gorgonia.NewTensor(g, tensor.Float32, 2, gorgonia.WithShape(1, 128), gorgonia.WithName("b1"))

	fc1, err := gorgonia.Mul(x, w1)
	if err != nil {
		return nil, fmt.Errorf("build gorgonia graph: %w", err)
	}
	fc1, err = gorgonia.Add(fc1, b1)
	if err != nil {
		return nil, fmt.Errorf("build gorgonia graph: %w", err)
	}
	fc1, err = gorgonia.Rectify(fc1)
	if err != nil {
		return nil, fmt.Errorf("build gorgonia graph: %w", err)
	}

	return &gorgoniaHandle{graph: g, input: x, output: fc1}, nil
}

type gorgoniaHandle struct {
	graph  *gorgonia.ExprGraph
	input  *gorgonia.Node
	output *gorgonia.Node
}

func (h *gorgoniaHandle) Framework() Framework { return FrameworkGorgonia }

func (h *gorgoniaHandle) Predict(ctx context.Context, image []byte, params Params) (DetectionResult, error) {
	vm := gorgonia.NewTapeMachine(h.graph)
	defer vm.Close()

	pixels := decodeToFloat32(image)
	inputShape := h.input.Shape()
	want := 1
	for _, d := range inputShape {
		want *= d
	}
	if len(pixels) > want {
		pixels = pixels[:want]
	} else {
		padded := make([]float32, want)
		copy(padded, pixels)
		pixels = padded
	}

	xVal := tensor.New(tensor.WithShape(inputShape...), tensor.WithBacking(pixels))
	if err := gorgonia.Let(h.input, xVal); err != nil {
		return DetectionResult{}, fmt.Errorf("bind gorgonia input: %w", err)
	}

	if err := vm.RunAll(); err != nil {
		return DetectionResult{}, fmt.Errorf("gorgonia vm run: %w", err)
	}

	return decodeDetections(h.output.Value(), params), nil
}

func (h *gorgoniaHandle) Close() error { return nil }

func (h *gorgoniaHandle) SizeBytes() int64 {
	total := int64(1)
	for _, d := range h.output.Shape() {
		total *= int64(d)
	}
	return total * 4
}
