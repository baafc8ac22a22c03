package recognizer

import (
	"context"
)

// InferenceBackend defines a pluggable backend for token-classification
// inference. Implementations may use ONNX Runtime or other engines.
type InferenceBackend interface {
	// Classify returns one score vector per input token, with one entry
	// per label in the model's label set.
	Classify(ctx context.Context, tokens []Token) ([][]float32, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// newInferenceBackend creates a backend if supported by the current build.
// The default (no build tags) returns nil to avoid CGO dependencies.
// Note: implementations are provided in build-tagged files, see backend_onnx.go and backend_stub.go
