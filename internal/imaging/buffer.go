// File: internal/imaging/buffer.go
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrInvalidImage marks a malformed or zero-size buffer. Callers should test
// for it with errors.Is.
var ErrInvalidImage = errors.New("invalid image")

// PixelBuffer is the normalized in-memory image representation shared by all
// engines: a dense height x width x channels grid of 8-bit samples in raster
// order (row-major, channel-major within a pixel). A float view in [0,1] is
// derived on demand for the numeric engines. Buffers are value objects with
// single-ownership transfer; engines never mutate their input buffer.
type PixelBuffer struct {
	height   int
	width    int
	channels int
	pix      []uint8
}

// New allocates a zeroed buffer. Channels must be 1 (grayscale), 3 (RGB) or
// 4 (RGBA).
func New(height, width, channels int) (*PixelBuffer, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, width, height)
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidImage, channels)
	}
	return &PixelBuffer{
		height:   height,
		width:    width,
		channels: channels,
		pix:      make([]uint8, height*width*channels),
	}, nil
}

// FromImage converts a decoded image into a PixelBuffer. Grayscale sources map
// to one channel, sources with a meaningful alpha channel to four, everything
// else to three.
func FromImage(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, w, h)
	}

	if gray, ok := img.(*image.Gray); ok {
		buf, err := New(h, w, 1)
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			copy(buf.pix[y*w:(y+1)*w], src)
		}
		return buf, nil
	}

	channels := 3
	if hasTranslucency(img) {
		channels = 4
	}
	buf, err := New(h, w, channels)
	if err != nil {
		return nil, err
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			buf.pix[i] = c.R
			buf.pix[i+1] = c.G
			buf.pix[i+2] = c.B
			if channels == 4 {
				buf.pix[i+3] = c.A
			}
			i += channels
		}
	}
	return buf, nil
}

func hasTranslucency(img image.Image) bool {
	// Fast path: opaque image types never carry alpha.
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Height returns the number of pixel rows.
func (b *PixelBuffer) Height() int { return b.height }

// Width returns the number of pixel columns.
func (b *PixelBuffer) Width() int { return b.width }

// Channels returns the number of samples per pixel.
func (b *PixelBuffer) Channels() int { return b.channels }

// Samples returns the total sample count (height * width * channels).
func (b *PixelBuffer) Samples() int { return len(b.pix) }

// Pix exposes the raw canonical sample slice in raster order. The slice is
// owned by the buffer; callers must not retain it past the buffer's lifetime.
func (b *PixelBuffer) Pix() []uint8 { return b.pix }

// Validate reports ErrInvalidImage for zero-size or inconsistent buffers.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidImage)
	}
	if b.height <= 0 || b.width <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, b.width, b.height)
	}
	if b.channels != 1 && b.channels != 3 && b.channels != 4 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidImage, b.channels)
	}
	if len(b.pix) != b.height*b.width*b.channels {
		return fmt.Errorf("%w: sample count %d does not match %dx%dx%d",
			ErrInvalidImage, len(b.pix), b.height, b.width, b.channels)
	}
	return nil
}

// Clone returns an independent deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	out := &PixelBuffer{
		height:   b.height,
		width:    b.width,
		channels: b.channels,
		pix:      make([]uint8, len(b.pix)),
	}
	copy(out.pix, b.pix)
	return out
}

// Float returns the derived float32 view in [0,1]. The canonical view and
// this one round-trip losslessly through FromFloat for values that originated
// as 8-bit samples.
func (b *PixelBuffer) Float() []float32 {
	out := make([]float32, len(b.pix))
	for i, v := range b.pix {
		out[i] = float32(v) / 255.0
	}
	return out
}

// FromFloat builds a buffer from a [0,1] float view, quantizing each sample to
// the nearest 8-bit value and clamping out-of-range inputs. This is the single
// intentional quantization step on the float path.
func FromFloat(data []float32, height, width, channels int) (*PixelBuffer, error) {
	buf, err := New(height, width, channels)
	if err != nil {
		return nil, err
	}
	if len(data) != len(buf.pix) {
		return nil, fmt.Errorf("%w: float view has %d samples, want %d",
			ErrInvalidImage, len(data), len(buf.pix))
	}
	for i, v := range data {
		buf.pix[i] = quantize(v)
	}
	return buf, nil
}

func quantize(v float32) uint8 {
	scaled := v*255.0 + 0.5
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return uint8(scaled)
}

// MeanAbsDelta computes the mean absolute per-sample difference between two
// buffers in normalized [0,1] units. Both buffers must share a shape.
func (b *PixelBuffer) MeanAbsDelta(other *PixelBuffer) (float64, error) {
	if other == nil || len(other.pix) != len(b.pix) {
		return 0, fmt.Errorf("%w: shape mismatch for delta", ErrInvalidImage)
	}
	var sum float64
	for i := range b.pix {
		d := int(b.pix[i]) - int(other.pix[i])
		if d < 0 {
			d = -d
		}
		sum += float64(d)
	}
	return sum / float64(len(b.pix)) / 255.0, nil
}

// ToImage renders the buffer back into a standard library image for encoding.
func (b *PixelBuffer) ToImage() image.Image {
	switch b.channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, b.width, b.height))
		for y := 0; y < b.height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.width], b.pix[y*b.width:(y+1)*b.width])
		}
		return img
	case 4:
		img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
		for y := 0; y < b.height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.width*4], b.pix[y*b.width*4:(y+1)*b.width*4])
		}
		return img
	default:
		img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
		si := 0
		for y := 0; y < b.height; y++ {
			di := y * img.Stride
			for x := 0; x < b.width; x++ {
				img.Pix[di] = b.pix[si]
				img.Pix[di+1] = b.pix[si+1]
				img.Pix[di+2] = b.pix[si+2]
				img.Pix[di+3] = 0xff
				si += 3
				di += 4
			}
		}
		return img
	}
}
