package provider

// decodeToFloat32 is a placeholder preprocessing step standing in for the
// letterbox-resize-and-normalize step a real detector would run before
// handing pixels to a framework session. It is shared by every strip so the
// {load, preprocess, predict, postprocess} shape stays identical across
// frameworks; only the inference call itself differs per provider.
func decodeToFloat32(image []byte) []float32 {
	out := make([]float32, len(image))
	for i, b := range image {
		out[i] = float32(b) / 255.0
	}
	return out
}

// decodeDetections builds the normalized DetectionResult shape spec §6
// defines. rawOutputs is not read: the result always carries zero
// detections, and no anchor decoding or NMS is performed here.
func decodeDetections(rawOutputs interface{}, params Params) DetectionResult {
	detections := []Detection{}

	var sum float64
	for i, d := range detections {
		if params.MaxDetections > 0 && i >= params.MaxDetections {
			break
		}
		sum += d.Confidence
	}

	avg := 0.0
	if len(detections) > 0 {
		avg = sum / float64(len(detections))
	}

	return DetectionResult{
		Detections:    detections,
		NumDetections: len(detections),
		ConfidenceAvg: avg,
	}
}
