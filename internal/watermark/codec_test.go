// File: internal/watermark/codec_test.go
package watermark

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
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

func newFlatBuffer(t *testing.T, h, w, ch int, value uint8) *imaging.PixelBuffer {
	t.Helper()
	buf, err := imaging.New(h, w, ch)
	require.NoError(t, err)
	pix := buf.Pix()
	for i := range pix {
		pix[i] = value
	}
	return buf
}

func mustPayload(t *testing.T, owner string) Payload {
	t.Helper()
	p, err := NewPayload(owner)
	require.NoError(t, err)
	return p
}

func TestPlanesForMapping(t *testing.T) {
	t.Parallel()

	// Round-robin by bit level, emitted channel-major.
	assert.Equal(t, []plane{{0, 0}}, planesFor(1, 3))
	assert.Equal(t, []plane{{0, 0}, {1, 0}, {2, 0}}, planesFor(3, 3))
	assert.Equal(t, []plane{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}}, planesFor(5, 3))

	// Grayscale stacks bits upward and saturates at eight planes.
	assert.Equal(t, []plane{{0, 0}, {0, 1}, {0, 2}}, planesFor(3, 1))
	assert.Len(t, planesFor(10, 1), 8)

	// Alpha participates as a fourth carrier channel.
	assert.Equal(t, []plane{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, planesFor(4, 4))
}

func TestCapacityStrictlyMonotonicRGB(t *testing.T) {
	t.Parallel()

	buf := newFlatBuffer(t, 32, 32, 3, 128)
	prev := 0
	for s := MinStrength; s <= MaxStrength; s++ {
		c := Capacity(buf, s)
		assert.Greater(t, c, prev, "strength %d", s)
		prev = c
	}
}

func TestCapacityGrayscaleSaturates(t *testing.T) {
	t.Parallel()

	buf := newFlatBuffer(t, 32, 32, 1, 128)
	assert.Equal(t, Capacity(buf, 8), Capacity(buf, 9))
	assert.Equal(t, Capacity(buf, 8), Capacity(buf, 10))
	assert.Less(t, Capacity(buf, 7), Capacity(buf, 8))
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	t.Parallel()

	payload := mustPayload(t, "artist-42")
	for _, ch := range []int{1, 3, 4} {
		for _, strength := range []int{1, 2, 5, 10} {
			buf := newRandomBuffer(t, 64, 64, ch, int64(ch*100+strength))

			marked, embedRes, err := Embed(buf, payload, strength)
			require.NoError(t, err, "ch=%d strength=%d", ch, strength)
			assert.Equal(t, "artist-42", embedRes.OwnerID)
			assert.GreaterOrEqual(t, embedRes.Copies, 1)

			got, err := Extract(marked)
			require.NoError(t, err)
			assert.Equal(t, schemas.ValidityValid, got.Validity, "ch=%d strength=%d", ch, strength)
			assert.Equal(t, "artist-42", got.OwnerID)
			assert.InDelta(t, 1.0, got.AgreementRatio, 1e-9)
			assert.False(t, got.PartialRecovery)

			// Grayscale saturates at eight planes, so deep strengths are
			// detected at the first strength with the same plane count.
			wantStrength := strength
			if ch == 1 && wantStrength > 8 {
				wantStrength = 8
			}
			assert.Equal(t, wantStrength, got.Strength)
		}
	}
}

func TestEmbedDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	buf := newRandomBuffer(t, 16, 16, 3, 1)
	before := append([]uint8{}, buf.Pix()...)

	_, _, err := Embed(buf, mustPayload(t, "artist-42"), 5)
	require.NoError(t, err)
	assert.Equal(t, before, buf.Pix())
}

func TestEmbedStrengthBounds(t *testing.T) {
	t.Parallel()

	buf := newFlatBuffer(t, 16, 16, 3, 128)
	p := mustPayload(t, "artist-42")

	_, _, err := Embed(buf, p, 0)
	require.Error(t, err)
	_, _, err = Embed(buf, p, 11)
	require.Error(t, err)
}

func TestEmbedCapacityError(t *testing.T) {
	t.Parallel()

	buf := newFlatBuffer(t, 1, 1, 3, 128)
	_, _, err := Embed(buf, mustPayload(t, "artist-42"), 1)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, capErr.Strength)
	assert.Equal(t, 1, capErr.CapacityBits)
	assert.Equal(t, (len("artist-42")+payloadOverhead)*8, capErr.RequiredBits)
	assert.Equal(t, capErr.RequiredBits, capErr.MinPixels)
}

func TestDoubleEmbedLastOwnerWins(t *testing.T) {
	t.Parallel()

	buf := newRandomBuffer(t, 64, 64, 3, 7)
	first, _, err := Embed(buf, mustPayload(t, "owner-one"), 5)
	require.NoError(t, err)

	t.Run("same strength", func(t *testing.T) {
		t.Parallel()
		second, _, err := Embed(first, mustPayload(t, "owner-two"), 5)
		require.NoError(t, err)

		got, err := Extract(second)
		require.NoError(t, err)
		assert.Equal(t, schemas.ValidityValid, got.Validity)
		assert.Equal(t, "owner-two", got.OwnerID)
	})

	t.Run("lower strength", func(t *testing.T) {
		t.Parallel()
		second, _, err := Embed(first, mustPayload(t, "owner-two"), 3)
		require.NoError(t, err)

		got, err := Extract(second)
		require.NoError(t, err)
		assert.Equal(t, schemas.ValidityValid, got.Validity)
		assert.Equal(t, "owner-two", got.OwnerID)
	})
}

func TestExtractNotFound(t *testing.T) {
	t.Parallel()

	// A flat buffer has all-zero low planes at every strength; nothing to find.
	got, err := Extract(newFlatBuffer(t, 32, 32, 3, 128))
	require.NoError(t, err)
	assert.Equal(t, schemas.ValidityNotFound, got.Validity)
	assert.Empty(t, got.OwnerID)
	assert.Zero(t, got.Strength)
}

func TestExtractCorruptedSingleCopy(t *testing.T) {
	t.Parallel()

	// 120 grayscale pixels at strength 1 hold exactly one 104-bit copy of an
	// "artist" payload, so there is no second copy to vote with.
	buf := newFlatBuffer(t, 10, 12, 1, 128)
	marked, embedRes, err := Embed(buf, mustPayload(t, "artist"), 1)
	require.NoError(t, err)
	require.Equal(t, 1, embedRes.Copies)

	// Flip one carrier bit inside the owner bytes.
	marked.Pix()[60] ^= 1

	got, err := Extract(marked)
	require.NoError(t, err)
	assert.Equal(t, schemas.ValidityCorrupted, got.Validity)
	assert.Empty(t, got.OwnerID)
	assert.Equal(t, 1, got.Strength)
}

func TestExtractMajorityVoteRecovery(t *testing.T) {
	t.Parallel()

	buf := newRandomBuffer(t, 64, 64, 3, 21)
	marked, embedRes, err := Embed(buf, mustPayload(t, "artist-42"), 1)
	require.NoError(t, err)
	require.Greater(t, embedRes.Copies, 10)

	// Flip a single owner bit of the third copy; its marker and length field
	// stay intact so it still participates in the vote as a damaged copy, and
	// a one-bit flip always breaks the additive checksum.
	// One copy spans 128 stream bits; at strength 1 stream bit i rides pixel i.
	copyStart := 2 * 128
	marked.Pix()[(copyStart+60)*3] ^= 1

	got, err := Extract(marked)
	require.NoError(t, err)
	assert.Equal(t, schemas.ValidityValid, got.Validity)
	assert.Equal(t, "artist-42", got.OwnerID)
	assert.True(t, got.PartialRecovery)
	assert.Less(t, got.AgreementRatio, 1.0)
	assert.Greater(t, got.AgreementRatio, 0.9)
}

func TestExtractInvalidBuffer(t *testing.T) {
	t.Parallel()

	var nilBuf *imaging.PixelBuffer
	_, err := Extract(nilBuf)
	require.ErrorIs(t, err, imaging.ErrInvalidImage)
}

func TestCapacityErrorMessage(t *testing.T) {
	t.Parallel()

	err := &CapacityError{Strength: 2, RequiredBits: 128, CapacityBits: 8, MinPixels: 64}
	assert.Contains(t, err.Error(), "128 bit payload")
	assert.Contains(t, err.Error(), "strength 2")
}

func TestBytesToBits(t *testing.T) {
	t.Parallel()

	bits := bytesToBits([]byte{0b10110000})
	assert.Equal(t, []uint8{1, 0, 1, 1, 0, 0, 0, 0}, bits)
}
