//go:build !onnx
// +build !onnx

package recognizer

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set.
func newInferenceBackend(logger *zap.Logger, modelPath string, maxLength int) InferenceBackend {
	return nil
}
