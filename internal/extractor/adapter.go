// File: internal/extractor/adapter.go
package extractor

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"

	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

// modelChannels is fixed: the extractor always sees RGB regardless of the
// source buffer's channel count.
const modelChannels = 3

// ImageNet channel statistics, the normalization the network was defined
// against.
var (
	normMean = [modelChannels]float32{0.485, 0.456, 0.406}
	normStd  = [modelChannels]float32{0.229, 0.224, 0.225}
)

// Config sizes the built-in extractor network and bounds its concurrency.
type Config struct {
	// Seed fixes the deterministic weight initialization.
	Seed int64 `mapstructure:"seed"`
	// InputSize is the square model resolution; inputs are resampled to it.
	InputSize int `mapstructure:"input_size"`
	// PatchSize is the non-overlapping patch side; must divide InputSize.
	PatchSize  int `mapstructure:"patch_size"`
	HiddenSize int `mapstructure:"hidden_size"`
	NumClasses int `mapstructure:"num_classes"`
	// MaxConcurrent bounds simultaneous model passes across the process.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultConfig returns the stock network shape.
func DefaultConfig() Config {
	return Config{
		Seed:          0x504E4750, // stable across releases; reseeding breaks score comparability
		InputSize:     224,
		PatchSize:     16,
		HiddenSize:    64,
		NumClasses:    32,
		MaxConcurrent: 4,
	}
}

// newModel builds the concrete network behind an Adapter. Injectable so tests
// can simulate initialization failures and runtime substitutes.
var newModel = func(cfg Config) (Model, error) {
	return newPatchNet(cfg)
}

// Adapter is a shared handle to the process-wide feature extractor. Acquire
// returns it; Release drops the caller's reference. The underlying model is
// freed when the last holder releases, and rebuilt on the next Acquire.
type Adapter struct {
	model Model
	sem   *semaphore.Weighted
}

var (
	adapterMu   sync.Mutex
	adapter     *Adapter
	adapterRefs int
)

// Acquire returns the shared extractor adapter, constructing the model on
// first use. Construction failures surface as ModelUnavailableError and are
// not memoized, so a later Acquire retries from scratch.
func Acquire(cfg Config) (*Adapter, error) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	if adapter == nil {
		m, err := newModel(cfg)
		if err != nil {
			return nil, &ModelUnavailableError{Cause: err}
		}
		limit := int64(cfg.MaxConcurrent)
		if limit <= 0 {
			limit = 1
		}
		adapter = &Adapter{model: m, sem: semaphore.NewWeighted(limit)}
	}
	adapterRefs++
	return adapter, nil
}

// Release drops one reference taken by Acquire. Safe to call once per
// successful Acquire only.
func Release() {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	if adapterRefs == 0 {
		return
	}
	adapterRefs--
	if adapterRefs == 0 {
		adapter = nil
	}
}

// InputSize returns the model's expected tensor shape.
func (a *Adapter) InputSize() (h, w, c int) { return a.model.InputSize() }

// NumClasses returns the model's logit dimensionality.
func (a *Adapter) NumClasses() int { return a.model.NumClasses() }

// ResampleRGB scales a buffer to the model resolution and returns it as an
// HWC RGB tensor in [0,1], still un-normalized. The gradient engines work in
// this pixel space so their perturbation budgets stay in intensity units.
func (a *Adapter) ResampleRGB(buf *imaging.PixelBuffer) ([]float32, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	h, w, _ := a.model.InputSize()

	src := buf.ToImage()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float32, h*w*modelChannels)
	i := 0
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < modelChannels; c++ {
				out[i] = float32(row[x*4+c]) / 255.0
				i++
			}
		}
	}
	return out, nil
}

// Normalize maps a [0,1] pixel tensor into the model's normalized input
// space. The per-channel std is positive, so gradient signs survive the
// inverse mapping unchanged.
func (a *Adapter) Normalize(p []float32) []float32 {
	out := make([]float32, len(p))
	for i, v := range p {
		c := i % modelChannels
		out[i] = (v - normMean[c]) / normStd[c]
	}
	return out
}

// Preprocess resamples a buffer to the model resolution and normalizes it
// into the HWC float tensor the model consumes.
func (a *Adapter) Preprocess(buf *imaging.PixelBuffer) ([]float32, error) {
	p, err := a.ResampleRGB(buf)
	if err != nil {
		return nil, err
	}
	return a.Normalize(p), nil
}

func (a *Adapter) enter(ctx context.Context) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("extractor: waiting for model slot: %w", err)
	}
	return nil
}

// Forward runs one bounded inference pass.
func (a *Adapter) Forward(ctx context.Context, x []float32) ([]float32, error) {
	if err := a.enter(ctx); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)
	return a.model.Forward(x)
}

// Embedding returns the pooled feature vector for x.
func (a *Adapter) Embedding(ctx context.Context, x []float32) ([]float32, error) {
	if err := a.enter(ctx); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)
	return a.model.Embedding(x)
}

// LossGradient computes the input gradient of the class cross-entropy loss.
func (a *Adapter) LossGradient(ctx context.Context, x []float32, class int) ([]float32, float64, error) {
	if err := a.enter(ctx); err != nil {
		return nil, 0, err
	}
	defer a.sem.Release(1)
	return a.model.LossGradient(x, class)
}

// DistanceGradient computes the input gradient of the squared embedding
// distance to ref.
func (a *Adapter) DistanceGradient(ctx context.Context, x []float32, ref []float32) ([]float32, float64, error) {
	if err := a.enter(ctx); err != nil {
		return nil, 0, err
	}
	defer a.sem.Release(1)
	return a.model.DistanceGradient(x, ref)
}

// resetForTest tears down the shared adapter regardless of outstanding
// references. Test helper only.
func resetForTest() {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	adapter = nil
	adapterRefs = 0
}
