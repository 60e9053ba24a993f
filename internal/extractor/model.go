// File: internal/extractor/model.go
package extractor

import (
	"fmt"
	"math"
)

// ModelUnavailableError reports that the feature extractor failed to
// initialize. The failure is fatal for the current call only; later calls may
// retry initialization.
type ModelUnavailableError struct {
	Cause error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("extractor: model unavailable: %v", e.Cause)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Cause }

// Model is the capability interface the shield engine programs against: a
// fixed, differentiable scoring function over a normalized input tensor. The
// engine stays agnostic to which concrete network or runtime backs it.
//
// Inputs are HWC float32 tensors of shape InputSize, already normalized by
// the adapter's preprocessing. Implementations must be stateless across calls
// so concurrent forward and gradient passes are safe.
type Model interface {
	// InputSize returns the expected (height, width, channels) of inputs.
	InputSize() (h, w, c int)
	// NumClasses returns the dimensionality of Forward's logits.
	NumClasses() int
	// Forward runs one inference pass and returns raw logits.
	Forward(x []float32) ([]float32, error)
	// Embedding returns the pooled pre-logits feature vector.
	Embedding(x []float32) ([]float32, error)
	// LossGradient returns the gradient of the cross-entropy loss for the
	// given class with respect to the input, plus the loss value.
	LossGradient(x []float32, class int) (grad []float32, loss float64, err error)
	// DistanceGradient returns the gradient of the squared distance between
	// the input's embedding and ref with respect to the input.
	DistanceGradient(x []float32, ref []float32) (grad []float32, dist float64, err error)
}

// Softmax converts logits to a probability distribution in float64 for
// numerically stable downstream scoring.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := float64(logits[0])
	for _, l := range logits[1:] {
		if float64(l) > max {
			max = float64(l)
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax returns the index of the largest logit, with the lowest index
// winning ties so scoring stays deterministic.
func ArgMax(logits []float32) int {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return best
}
