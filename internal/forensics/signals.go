// File: internal/forensics/signals.go
package forensics

import (
	"math"

	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

// lsbStats summarizes the least-significant bit plane of a buffer.
type lsbStats struct {
	disorder  float64 // combined balance + transition statistic, [0,1]
	entropy   float64 // binary entropy of the ones ratio, [0,1]
	chiSquare float64 // pair-flatness statistic, [0,1], 1 = stego-flat
}

// analyzeLSB measures how noise-like the LSB plane is. Natural images carry
// structured low bits that track image content; both LSB embedding and
// post-hoc scrubbing push the plane toward uniform randomness.
func analyzeLSB(buf *imaging.PixelBuffer) lsbStats {
	pix := buf.Pix()
	if len(pix) == 0 {
		return lsbStats{}
	}

	ones := 0
	transitions := 0
	prev := pix[0] & 1
	for i, v := range pix {
		b := v & 1
		ones += int(b)
		if i > 0 {
			if b != prev {
				transitions++
			}
			prev = b
		}
	}

	p1 := float64(ones) / float64(len(pix))
	balance := 1 - 2*math.Abs(p1-0.5)

	t := 0.0
	if len(pix) > 1 {
		t = float64(transitions) / float64(len(pix)-1)
	}
	randomness := 1 - 2*math.Abs(t-0.5)

	return lsbStats{
		disorder:  (balance + randomness) / 2,
		entropy:   binaryEntropy(p1),
		chiSquare: pairFlatness(pix),
	}
}

func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

// pairFlatness runs the classic chi-square test over value pairs (2k, 2k+1).
// LSB embedding equalizes the two histogram bins of each pair; the statistic
// maps to [0,1] where 1 means the pairs are suspiciously flat.
func pairFlatness(pix []uint8) float64 {
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}

	var chi float64
	pairs := 0
	for k := 0; k < 256; k += 2 {
		a, b := float64(hist[k]), float64(hist[k+1])
		e := (a + b) / 2
		if e < 4 {
			continue // too sparse to contribute
		}
		chi += (a - e) * (a - e) / e
		chi += (b - e) * (b - e) / e
		pairs++
	}
	if pairs == 0 {
		return 0
	}
	// Per-pair chi of 0 means perfectly flat pairs. Natural content keeps the
	// normalized statistic well above 1.
	return math.Exp(-chi / float64(pairs) / 2)
}

// blockArtifact measures 8x8 block-boundary discontinuity, the footprint of a
// lossy recompression cycle. It compares the mean absolute luminance gradient
// across block boundaries against the interior gradient and maps the excess
// ratio into [0,1].
func blockArtifact(buf *imaging.PixelBuffer) float64 {
	h, w := buf.Height(), buf.Width()
	if h < 16 || w < 16 {
		return 0
	}

	lum := luminance(buf)
	var boundarySum, interiorSum float64
	var boundaryN, interiorN int

	for y := 0; y < h; y++ {
		for x := 1; x < w; x++ {
			d := math.Abs(lum[y*w+x] - lum[y*w+x-1])
			if x%8 == 0 {
				boundarySum += d
				boundaryN++
			} else {
				interiorSum += d
				interiorN++
			}
		}
	}
	for x := 0; x < w; x++ {
		for y := 1; y < h; y++ {
			d := math.Abs(lum[y*w+x] - lum[(y-1)*w+x])
			if y%8 == 0 {
				boundarySum += d
				boundaryN++
			} else {
				interiorSum += d
				interiorN++
			}
		}
	}
	if boundaryN == 0 || interiorN == 0 {
		return 0
	}

	interior := interiorSum / float64(interiorN)
	if interior < 1e-6 {
		return 0
	}
	ratio := (boundarySum / float64(boundaryN)) / interior
	// ratio 1 = no blocking; saturate at double the interior gradient.
	out := ratio - 1
	if out < 0 {
		return 0
	}
	if out > 1 {
		return 1
	}
	return out
}

func luminance(buf *imaging.PixelBuffer) []float64 {
	h, w, ch := buf.Height(), buf.Width(), buf.Channels()
	pix := buf.Pix()
	out := make([]float64, h*w)
	if ch == 1 {
		for i, v := range pix {
			out[i] = float64(v)
		}
		return out
	}
	for i := 0; i < h*w; i++ {
		base := i * ch
		out[i] = 0.299*float64(pix[base]) + 0.587*float64(pix[base+1]) + 0.114*float64(pix[base+2])
	}
	return out
}
