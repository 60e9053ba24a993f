// File: internal/shield/shield.go

// Package shield synthesizes bounded adversarial perturbations that degrade
// automated feature extraction while keeping images visually intact and any
// embedded watermark recoverable.
package shield

import (
	"context"
	"fmt"
	"math"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/extractor"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

const (
	// MinLevel and MaxLevel bound the protection knob.
	MinLevel = 0
	MaxLevel = 100

	// quantum is the intensity granularity of the applied perturbation. Every
	// per-sample change is a multiple of it, so the two lowest bit planes of
	// each carrier channel pass through the shield untouched and a watermark
	// embedded at moderate strength survives protection.
	quantum = 4
)

// SpecForLevel maps a protection level to the bounded synthesis parameters.
// Epsilon grows linearly from 0.001 to 0.05 across the level range; the step
// count grows from 1 to 11; the step size follows the usual 2.5*eps/steps
// schedule so the iterate can traverse the full epsilon ball.
func SpecForLevel(level int, mode schemas.TargetMode) (schemas.PerturbationSpec, error) {
	if level < MinLevel || level > MaxLevel {
		return schemas.PerturbationSpec{}, fmt.Errorf("shield: level %d outside [%d,%d]", level, MinLevel, MaxLevel)
	}
	if mode == "" {
		mode = schemas.ModeUntargeted
	}
	eps := 0.001 + float64(level)/100.0*0.049
	steps := 1 + level/10
	return schemas.PerturbationSpec{
		Epsilon:  eps,
		Steps:    steps,
		StepSize: 2.5 * eps / float64(steps),
		Mode:     mode,
	}, nil
}

// Protect runs the default untargeted synthesis at the given level.
func Protect(ctx context.Context, buf *imaging.PixelBuffer, level int, extCfg extractor.Config) (*imaging.PixelBuffer, schemas.ShieldResult, error) {
	spec, err := SpecForLevel(level, schemas.ModeUntargeted)
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}
	return ProtectWithSpec(ctx, buf, spec, level, extCfg)
}

// ProtectWithSpec synthesizes a perturbation under an explicit spec. The
// gradient ascent runs at the extractor's native resolution; the resulting
// delta field is upsampled to the source resolution and applied in quantized
// intensity steps. Distortion is bounded by construction rather than checked
// after the fact: applyDelta caps every sample change at the quantized epsilon
// amplitude (never below one quantum), so the reported MeanAbsDelta cannot
// exceed that amplitude and no rescale pass is needed. The input buffer is
// never mutated.
func ProtectWithSpec(ctx context.Context, buf *imaging.PixelBuffer, spec schemas.PerturbationSpec, level int, extCfg extractor.Config) (*imaging.PixelBuffer, schemas.ShieldResult, error) {
	if err := buf.Validate(); err != nil {
		return nil, schemas.ShieldResult{}, err
	}
	if spec.Epsilon <= 0 || spec.Steps <= 0 || spec.StepSize <= 0 {
		return nil, schemas.ShieldResult{}, fmt.Errorf("shield: degenerate spec %+v", spec)
	}

	ad, err := extractor.Acquire(extCfg)
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}
	defer extractor.Release()

	p0, err := ad.ResampleRGB(buf)
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}

	// Anchor the objective on the clean image once, up front.
	var targetClass int
	var refEmbedding []float32
	switch spec.Mode {
	case schemas.ModeEmbedDistance:
		refEmbedding, err = ad.Embedding(ctx, ad.Normalize(p0))
	case schemas.ModeUntargeted, "":
		var logits []float32
		logits, err = ad.Forward(ctx, ad.Normalize(p0))
		if err == nil {
			targetClass = extractor.ArgMax(logits)
		}
	default:
		return nil, schemas.ShieldResult{}, fmt.Errorf("shield: unknown target mode %q", spec.Mode)
	}
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}

	adv := make([]float32, len(p0))
	copy(adv, p0)
	eps := float32(spec.Epsilon)
	alpha := float32(spec.StepSize)

	if spec.Mode == schemas.ModeEmbedDistance {
		// The clean image sits exactly at the reference embedding, a zero
		// gradient fixed point. Break the symmetry with a deterministic
		// alternating nudge inside the epsilon ball.
		kick := alpha
		if kick > eps {
			kick = eps
		}
		for i := range adv {
			if i%2 == 0 {
				adv[i] += kick
			} else {
				adv[i] -= kick
			}
			if adv[i] < 0 {
				adv[i] = 0
			} else if adv[i] > 1 {
				adv[i] = 1
			}
		}
	}

	stepsRun := 0
	for step := 0; step < spec.Steps; step++ {
		select {
		case <-ctx.Done():
			return nil, schemas.ShieldResult{}, fmt.Errorf("shield: cancelled after %d of %d steps: %w", stepsRun, spec.Steps, ctx.Err())
		default:
		}

		var grad []float32
		if spec.Mode == schemas.ModeEmbedDistance {
			grad, _, err = ad.DistanceGradient(ctx, ad.Normalize(adv), refEmbedding)
		} else {
			grad, _, err = ad.LossGradient(ctx, ad.Normalize(adv), targetClass)
		}
		if err != nil {
			return nil, schemas.ShieldResult{}, err
		}

		for i := range adv {
			switch {
			case grad[i] > 0:
				adv[i] += alpha
			case grad[i] < 0:
				adv[i] -= alpha
			}
			if d := adv[i] - p0[i]; d > eps {
				adv[i] = p0[i] + eps
			} else if d < -eps {
				adv[i] = p0[i] - eps
			}
			if adv[i] < 0 {
				adv[i] = 0
			} else if adv[i] > 1 {
				adv[i] = 1
			}
		}
		stepsRun++
	}

	delta := make([]float32, len(p0))
	for i := range delta {
		delta[i] = adv[i] - p0[i]
	}

	out := applyDelta(buf, delta, extCfg, spec.Epsilon)

	mad, err := buf.MeanAbsDelta(out)
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}
	robustness, err := scoreBuffer(ctx, ad, out)
	if err != nil {
		return nil, schemas.ShieldResult{}, err
	}

	return out, schemas.ShieldResult{
		Level:           level,
		Spec:            spec,
		RobustnessScore: robustness,
		MeanAbsDelta:    mad,
		StepsRun:        stepsRun,
	}, nil
}

// Score estimates how resistant a buffer already is to feature extraction,
// 0-100. It is the normalized entropy of the extractor's class distribution:
// a confidently classified image scores low, an image whose features wash out
// into uniform uncertainty scores high.
func Score(ctx context.Context, buf *imaging.PixelBuffer, extCfg extractor.Config) (float64, error) {
	if err := buf.Validate(); err != nil {
		return 0, err
	}
	ad, err := extractor.Acquire(extCfg)
	if err != nil {
		return 0, err
	}
	defer extractor.Release()
	return scoreBuffer(ctx, ad, buf)
}

func scoreBuffer(ctx context.Context, ad *extractor.Adapter, buf *imaging.PixelBuffer) (float64, error) {
	x, err := ad.Preprocess(buf)
	if err != nil {
		return 0, err
	}
	logits, err := ad.Forward(ctx, x)
	if err != nil {
		return 0, err
	}
	probs := extractor.Softmax(logits)
	var entropy float64
	for _, p := range probs {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return 100.0 * entropy / math.Log(float64(len(probs))), nil
}

// applyDelta upsamples the model-resolution delta field to the source
// resolution and folds it into a copy of the buffer. Each sample moves by a
// multiple of quantum, clamped to [0,255] in quantum steps, so low bit planes
// never change. Alpha channels are left alone.
func applyDelta(buf *imaging.PixelBuffer, delta []float32, extCfg extractor.Config, epsilon float64) *imaging.PixelBuffer {
	h, w := buf.Height(), buf.Width()
	modelSide := extCfg.InputSize
	field := resizeField(delta, modelSide, modelSide, h, w)

	amp := int(epsilon*255.0) / quantum * quantum
	if amp < quantum {
		amp = quantum
	}

	out := buf.Clone()
	pix := out.Pix()
	channels := out.Channels()
	carriers := channels
	if carriers > 3 {
		carriers = 3 // never perturb alpha
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fbase := (y*w + x) * rgbChannels
			pbase := (y*w + x) * channels
			for c := 0; c < carriers; c++ {
				d := float64(field[fbase+c])
				if channels == 1 {
					// Grayscale carries the mean of the RGB field.
					d = (float64(field[fbase]) + float64(field[fbase+1]) + float64(field[fbase+2])) / 3.0
				}
				// Scale the delta to the quantized amplitude: a sample at the
				// epsilon boundary moves by exactly amp.
				q := int(math.Round(d/epsilon*float64(amp)/quantum)) * quantum
				if q > amp {
					q = amp
				} else if q < -amp {
					q = -amp
				}

				v := int(pix[pbase+c]) + q
				for v > 255 {
					v -= quantum
				}
				for v < 0 {
					v += quantum
				}
				pix[pbase+c] = uint8(v)
			}
		}
	}
	return out
}

// rgbChannels is the extractor's fixed channel count.
const rgbChannels = 3

// resizeField bilinearly resamples a float32 HWC field between resolutions.
// The standard library scalers only speak 8-bit images, which would quantize
// the delta before it ever reaches the amplitude mapping.
func resizeField(src []float32, sh, sw, dh, dw int) []float32 {
	if sh == dh && sw == dw {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	out := make([]float32, dh*dw*rgbChannels)
	sy := float64(sh) / float64(dh)
	sx := float64(sw) / float64(dw)
	for y := 0; y < dh; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := fy - float64(y0)
		y1 := y0 + 1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > sh-1 {
			y1 = sh - 1
		}
		for x := 0; x < dw; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := fx - float64(x0)
			x1 := x0 + 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > sw-1 {
				x1 = sw - 1
			}
			for c := 0; c < rgbChannels; c++ {
				v00 := float64(src[(y0*sw+x0)*rgbChannels+c])
				v01 := float64(src[(y0*sw+x1)*rgbChannels+c])
				v10 := float64(src[(y1*sw+x0)*rgbChannels+c])
				v11 := float64(src[(y1*sw+x1)*rgbChannels+c])
				top := v00 + (v01-v00)*wx
				bot := v10 + (v11-v10)*wx
				out[(y*dw+x)*rgbChannels+c] = float32(top + (bot-top)*wy)
			}
		}
	}
	return out
}
