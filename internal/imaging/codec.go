// File: internal/imaging/codec.go
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	// Register the stdlib decoders alongside the extended formats so
	// image.Decode can sniff anything we accept at the boundary.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads any registered image encoding into a PixelBuffer and reports
// the detected format name.
func Decode(r io.Reader) (*PixelBuffer, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode failed: %v", ErrInvalidImage, err)
	}
	buf, err := FromImage(img)
	if err != nil {
		return nil, "", err
	}
	return buf, format, nil
}

// DecodeBytes decodes an in-memory encoded image. Empty input is rejected
// before the decoder ever sees it.
func DecodeBytes(raw []byte) (*PixelBuffer, string, error) {
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	return Decode(bytes.NewReader(raw))
}

// DecodeFile decodes the image at path.
func DecodeFile(path string) (*PixelBuffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		return nil, "", fmt.Errorf("%w: %s is empty", ErrInvalidImage, path)
	}
	return Decode(f)
}

// EncodePNG writes the buffer as PNG. Watermarks live in exact pixel values,
// so the lossless encoding is the only one offered for engine output; lossy
// formats would destroy the embedded bit planes.
func EncodePNG(w io.Writer, buf *PixelBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(w, buf.ToImage()); err != nil {
		return fmt.Errorf("png encode: %w", err)
	}
	return nil
}

// EncodeFile writes the buffer as PNG at path.
func EncodeFile(path string, buf *PixelBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return EncodePNG(f, buf)
}

// StripMetadata returns a pixel-only copy of the buffer. Combined with PNG
// re-encoding this drops EXIF, ICC profiles, text chunks and every other
// ancillary block, since the encoder only ever sees raw samples.
func StripMetadata(buf *PixelBuffer) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf.Clone(), nil
}
