// Package provider defines the inference provider strip spec §6 describes:
// {load, preprocess, predict, postprocess} behind one interface, with one
// concrete implementation per ML framework.
package provider

import "context"

// Framework identifies which ML runtime backs a Provider.
type Framework string

const (
	FrameworkONNX       Framework = "onnx"
	FrameworkGorgonia   Framework = "gorgonia"
	FrameworkTensorFlow Framework = "tensorflow"
	FrameworkGoLearn    Framework = "golearn"
)

// Detection is a single detected object.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       [4]float64 `json:"bbox"` // x, y, width, height
}

// DetectionResult is the provider's normalized inference output (spec §6).
type DetectionResult struct {
	Detections     []Detection `json:"detections"`
	NumDetections  int         `json:"num_detections"`
	ConfidenceAvg  float64     `json:"confidence_avg"`
	ImageWidth     int         `json:"image_width"`
	ImageHeight    int         `json:"image_height"`
}

// Params mirrors the YOLO-style inference parameters the original service
// accepted (conf_threshold, iou_threshold, max_det, classes).
type Params struct {
	ConfThreshold float64
	IOUThreshold  float64
	MaxDetections int
	Classes       []int
}

// DefaultParams matches original_source's yolo_service.py defaults.
func DefaultParams() Params {
	return Params{
		ConfThreshold: 0.25,
		IOUThreshold:  0.45,
		MaxDetections: 1000,
	}
}

// Provider is the strip every ML framework binding implements. engine.py's
// two divergent predict code paths are unified into this single method per
// implementation — there is exactly one predict path per framework.
type Provider interface {
	Framework() Framework
	// Load prepares a model identified by path/config for inference. It may
	// be slow (file or network IO) and must be safe to call from outside any
	// lock the caller holds.
	Load(ctx context.Context, modelPath string, metadata map[string]interface{}) (Handle, error)
}

// Handle is a loaded model ready to run inference. Predict runs
// preprocessing, inference and postprocessing in one call; Handle has no
// separate Preprocess or Postprocess methods.
type Handle interface {
	Framework() Framework
	Predict(ctx context.Context, image []byte, params Params) (DetectionResult, error)
	// Close releases any native resources (GPU buffers, session handles).
	Close() error
	// SizeBytes estimates the handle's resident memory, used by the model
	// cache for byte-bounded eviction.
	SizeBytes() int64
}
