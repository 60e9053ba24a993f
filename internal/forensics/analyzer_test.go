// File: internal/forensics/analyzer_test.go
package forensics

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
	"github.com/pngprotect/pngprotect-cli/internal/watermark"
)

func newRandomBuffer(t *testing.T, h, w, ch int, seed int64) *imaging.PixelBuffer {
	t.Helper()
	buf, err := imaging.New(h, w, ch)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	pix := buf.Pix()
	for i := range pix {
		pix[i] = uint8(rng.Intn(256))
	}
	return buf
}

func watermarkedBuffer(t *testing.T, owner string, seed int64) *imaging.PixelBuffer {
	t.Helper()
	buf := newRandomBuffer(t, 64, 64, 3, seed)
	payload, err := watermark.NewPayload(owner)
	require.NoError(t, err)
	marked, _, err := watermark.Embed(buf, payload, 5)
	require.NoError(t, err)
	return marked
}

// scrubLowBits simulates a watermark-stripping attack: zeroing the two lowest
// bit planes of every sample.
func scrubLowBits(buf *imaging.PixelBuffer) *imaging.PixelBuffer {
	out := buf.Clone()
	pix := out.Pix()
	for i := range pix {
		pix[i] &^= 3
	}
	return out
}

func TestAnalyzeDeterministic(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	buf := watermarkedBuffer(t, "artist-42", 1)

	v1, err := a.Analyze(context.Background(), buf, "artist-42")
	require.NoError(t, err)
	v2, err := a.Analyze(context.Background(), buf, "artist-42")
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(v1, v2), "same bytes, same verdict")
}

func TestAnalyzeWatermarkedBuffer(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	v, err := a.Analyze(context.Background(), watermarkedBuffer(t, "artist-42", 2), "")
	require.NoError(t, err)

	assert.Equal(t, schemas.ValidityValid, v.Extraction.Validity)
	assert.Equal(t, "artist-42", v.Extraction.OwnerID)
	assert.False(t, v.HasFlag(schemas.FlagWatermarkMissing))
	assert.False(t, v.HasFlag(schemas.FlagWatermarkCorrupted))
	assert.Nil(t, v.OwnerMatch, "no claimed owner, no comparison")
	assert.InDelta(t, 0.0, v.Signals.WatermarkAbsence, 1e-9)
	assert.GreaterOrEqual(t, v.TamperConfidence, 0.0)
	assert.LessOrEqual(t, v.TamperConfidence, 100.0)
}

func TestStrippingRaisesConfidence(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	marked := watermarkedBuffer(t, "artist-42", 3)
	stripped := scrubLowBits(marked)

	intact, err := a.Analyze(context.Background(), marked, "")
	require.NoError(t, err)
	attacked, err := a.Analyze(context.Background(), stripped, "")
	require.NoError(t, err)

	assert.Equal(t, schemas.ValidityNotFound, attacked.Extraction.Validity)
	assert.True(t, attacked.HasFlag(schemas.FlagWatermarkMissing))
	assert.Greater(t, attacked.TamperConfidence, intact.TamperConfidence)
}

func TestOwnerVerification(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	buf := watermarkedBuffer(t, "artist-42", 4)

	t.Run("match", func(t *testing.T) {
		t.Parallel()
		v, err := a.Analyze(context.Background(), buf, "artist-42")
		require.NoError(t, err)
		require.NotNil(t, v.OwnerMatch)
		assert.True(t, *v.OwnerMatch)
		assert.False(t, v.HasFlag(schemas.FlagOwnerMismatch))
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()
		v, err := a.Analyze(context.Background(), buf, "somebody-else")
		require.NoError(t, err)
		require.NotNil(t, v.OwnerMatch)
		assert.False(t, *v.OwnerMatch)
		assert.True(t, v.HasFlag(schemas.FlagOwnerMismatch))
	})
}

func TestAnalyzeCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(nil)
	_, err := a.Analyze(ctx, newRandomBuffer(t, 16, 16, 3, 5), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeInvalidBuffer(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	var nilBuf *imaging.PixelBuffer
	_, err := a.Analyze(context.Background(), nilBuf, "")
	require.ErrorIs(t, err, imaging.ErrInvalidImage)
}

func TestWatermarkAbsenceMapping(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, watermarkAbsence(schemas.ExtractResult{
		Validity: schemas.ValidityValid, AgreementRatio: 1.0,
	}), 1e-9)
	assert.InDelta(t, 0.15, watermarkAbsence(schemas.ExtractResult{
		Validity: schemas.ValidityValid, AgreementRatio: 0.5,
	}), 1e-9)
	assert.InDelta(t, 0.8, watermarkAbsence(schemas.ExtractResult{Validity: schemas.ValidityCorrupted}), 1e-9)
	assert.InDelta(t, 0.6, watermarkAbsence(schemas.ExtractResult{Validity: schemas.ValidityNotFound}), 1e-9)
}

func TestFlagsAreSorted(t *testing.T) {
	t.Parallel()

	flags := sortedFlags(map[schemas.Flag]bool{
		schemas.FlagWatermarkMissing: true,
		schemas.FlagLSBDisturbed:     true,
		schemas.FlagRecompression:    true,
	})
	require.Len(t, flags, 3)
	for i := 1; i < len(flags); i++ {
		assert.Less(t, string(flags[i-1]), string(flags[i]))
	}
}
