// File: internal/extractor/patchnet.go
package extractor

import (
	"fmt"
	"math"
	"math/rand"
)

// patchNet is the built-in differentiable extractor: a fixed-weight
// patch-projection network (non-overlapping patch embedding, tanh hidden
// layer, mean pool, linear logits). The weights are seeded deterministically,
// so every process computes identical forward passes and gradients for
// identical inputs. It stands in for the heavyweight pretrained CNN the
// original deployment used; nothing in the engines depends on which network
// sits behind the Model interface.
type patchNet struct {
	inputSize int
	patch     int
	hidden    int
	classes   int

	patchDim int // patch*patch*channels
	patches  int // (inputSize/patch)^2

	w1 []float32 // patchDim x hidden
	b1 []float32 // hidden
	w2 []float32 // hidden x classes
	b2 []float32 // classes
}

func newPatchNet(cfg Config) (*patchNet, error) {
	if cfg.InputSize <= 0 || cfg.PatchSize <= 0 || cfg.InputSize%cfg.PatchSize != 0 {
		return nil, fmt.Errorf("input size %d not divisible by patch size %d", cfg.InputSize, cfg.PatchSize)
	}
	if cfg.HiddenSize <= 0 || cfg.NumClasses <= 1 {
		return nil, fmt.Errorf("implausible layer sizes: hidden=%d classes=%d", cfg.HiddenSize, cfg.NumClasses)
	}

	side := cfg.InputSize / cfg.PatchSize
	n := &patchNet{
		inputSize: cfg.InputSize,
		patch:     cfg.PatchSize,
		hidden:    cfg.HiddenSize,
		classes:   cfg.NumClasses,
		patchDim:  cfg.PatchSize * cfg.PatchSize * modelChannels,
		patches:   side * side,
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n.w1 = glorotUniform(rng, n.patchDim, n.hidden)
	n.b1 = make([]float32, n.hidden)
	n.w2 = glorotUniform(rng, n.hidden, n.classes)
	n.b2 = make([]float32, n.classes)
	return n, nil
}

// glorotUniform draws fanIn*fanOut weights in [-limit, limit] with
// limit = sqrt(6/(fanIn+fanOut)).
func glorotUniform(rng *rand.Rand, fanIn, fanOut int) []float32 {
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	out := make([]float32, fanIn*fanOut)
	for i := range out {
		out[i] = (rng.Float32()*2 - 1) * limit
	}
	return out
}

func (n *patchNet) InputSize() (int, int, int) {
	return n.inputSize, n.inputSize, modelChannels
}

func (n *patchNet) NumClasses() int { return n.classes }

func (n *patchNet) checkInput(x []float32) error {
	want := n.inputSize * n.inputSize * modelChannels
	if len(x) != want {
		return fmt.Errorf("extractor: input has %d samples, want %d", len(x), want)
	}
	return nil
}

// activations holds the intermediate state of one forward pass, kept so the
// backward pass can reuse it.
type activations struct {
	hidden    []float32 // patches x hidden, post-tanh
	embedding []float32 // hidden
	logits    []float32 // classes
}

func (n *patchNet) forward(x []float32) *activations {
	act := &activations{
		hidden:    make([]float32, n.patches*n.hidden),
		embedding: make([]float32, n.hidden),
		logits:    make([]float32, n.classes),
	}

	patchVec := make([]float32, n.patchDim)
	for p := 0; p < n.patches; p++ {
		n.gatherPatch(x, p, patchVec)
		hp := act.hidden[p*n.hidden : (p+1)*n.hidden]
		for j := 0; j < n.hidden; j++ {
			sum := n.b1[j]
			for i, v := range patchVec {
				sum += v * n.w1[i*n.hidden+j]
			}
			hp[j] = float32(math.Tanh(float64(sum)))
			act.embedding[j] += hp[j]
		}
	}
	inv := float32(1.0 / float64(n.patches))
	for j := range act.embedding {
		act.embedding[j] *= inv
	}

	for k := 0; k < n.classes; k++ {
		sum := n.b2[k]
		for j, e := range act.embedding {
			sum += e * n.w2[j*n.classes+k]
		}
		act.logits[k] = sum
	}
	return act
}

// backward propagates a gradient at the embedding back to the input tensor.
func (n *patchNet) backward(x []float32, act *activations, dEmbedding []float32) []float32 {
	grad := make([]float32, len(x))
	inv := float32(1.0 / float64(n.patches))

	du := make([]float32, n.hidden)
	for p := 0; p < n.patches; p++ {
		hp := act.hidden[p*n.hidden : (p+1)*n.hidden]
		for j := 0; j < n.hidden; j++ {
			// Mean pool spreads the embedding gradient evenly; tanh' = 1-h^2.
			du[j] = dEmbedding[j] * inv * (1 - hp[j]*hp[j])
		}
		n.scatterPatch(grad, p, du)
	}
	return grad
}

// gatherPatch copies patch p of the HWC tensor into dst.
func (n *patchNet) gatherPatch(x []float32, p int, dst []float32) {
	side := n.inputSize / n.patch
	py, px := p/side, p%side
	i := 0
	for dy := 0; dy < n.patch; dy++ {
		row := py*n.patch + dy
		base := (row*n.inputSize + px*n.patch) * modelChannels
		copy(dst[i:i+n.patch*modelChannels], x[base:base+n.patch*modelChannels])
		i += n.patch * modelChannels
	}
}

// scatterPatch accumulates w1 * du into the input-gradient slots of patch p.
func (n *patchNet) scatterPatch(grad []float32, p int, du []float32) {
	side := n.inputSize / n.patch
	py, px := p/side, p%side
	i := 0
	for dy := 0; dy < n.patch; dy++ {
		row := py*n.patch + dy
		base := (row*n.inputSize + px*n.patch) * modelChannels
		for dx := 0; dx < n.patch*modelChannels; dx++ {
			sum := float32(0)
			for j := 0; j < n.hidden; j++ {
				sum += n.w1[i*n.hidden+j] * du[j]
			}
			grad[base+dx] += sum
			i++
		}
	}
}

func (n *patchNet) Forward(x []float32) ([]float32, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}
	return n.forward(x).logits, nil
}

func (n *patchNet) Embedding(x []float32) ([]float32, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}
	return n.forward(x).embedding, nil
}

func (n *patchNet) LossGradient(x []float32, class int) ([]float32, float64, error) {
	if err := n.checkInput(x); err != nil {
		return nil, 0, err
	}
	if class < 0 || class >= n.classes {
		return nil, 0, fmt.Errorf("extractor: class %d outside [0,%d)", class, n.classes)
	}

	act := n.forward(x)
	probs := Softmax(act.logits)
	loss := -math.Log(math.Max(probs[class], 1e-12))

	// dLoss/dLogits = softmax - onehot; fold through the linear head to the
	// embedding, then reuse the shared backward pass.
	dEmbedding := make([]float32, n.hidden)
	for j := 0; j < n.hidden; j++ {
		var sum float64
		for k := 0; k < n.classes; k++ {
			dl := probs[k]
			if k == class {
				dl -= 1
			}
			sum += dl * float64(n.w2[j*n.classes+k])
		}
		dEmbedding[j] = float32(sum)
	}
	return n.backward(x, act, dEmbedding), loss, nil
}

func (n *patchNet) DistanceGradient(x []float32, ref []float32) ([]float32, float64, error) {
	if err := n.checkInput(x); err != nil {
		return nil, 0, err
	}
	if len(ref) != n.hidden {
		return nil, 0, fmt.Errorf("extractor: reference embedding has %d dims, want %d", len(ref), n.hidden)
	}

	act := n.forward(x)
	dEmbedding := make([]float32, n.hidden)
	var dist float64
	for j := range dEmbedding {
		d := act.embedding[j] - ref[j]
		dist += float64(d) * float64(d)
		dEmbedding[j] = 2 * d
	}
	return n.backward(x, act, dEmbedding), dist, nil
}
