// File: internal/watermark/codec.go
package watermark

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/imaging"
)

const (
	// MinStrength and MaxStrength bound the embed bit-depth knob. Strength
	// trades imperceptibility for redundancy: it maps to the total number of
	// low bit planes carrying payload bits, allocated lowest-bit-first
	// round-robin across channels.
	MinStrength = 1
	MaxStrength = 10
)

// CapacityError reports that a buffer cannot hold even one full payload copy
// at the requested strength.
type CapacityError struct {
	Strength     int
	RequiredBits int
	CapacityBits int
	// MinPixels is the pixel count that would fit one copy at this strength.
	MinPixels int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf(
		"watermark: image capacity %d bits cannot hold a %d bit payload at strength %d (needs at least %d pixels)",
		e.CapacityBits, e.RequiredBits, e.Strength, e.MinPixels)
}

// plane addresses one carrier bit within a pixel.
type plane struct {
	channel int
	bit     int
}

// planesFor maps a strength to the ordered carrier planes of one pixel.
// Allocation is round-robin by bit level so low strengths stay in the least
// significant planes; emission order is channel-major within the pixel, which
// is also the raster write order. Grayscale saturates at eight planes, so at
// strength 8 and above the payload occupies the entire sample: on
// single-channel images high strengths are visibly destructive and trade
// fidelity for redundancy outright.
func planesFor(strength, channels int) []plane {
	if strength < MinStrength {
		strength = MinStrength
	}
	if strength > MaxStrength {
		strength = MaxStrength
	}
	total := strength
	if max := channels * 8; total > max {
		total = max
	}

	perChannel := make([]int, channels)
	for assigned := 0; assigned < total; {
		for c := 0; c < channels && assigned < total; c++ {
			perChannel[c]++
			assigned++
		}
	}

	out := make([]plane, 0, total)
	for c := 0; c < channels; c++ {
		for b := 0; b < perChannel[c]; b++ {
			out = append(out, plane{channel: c, bit: b})
		}
	}
	return out
}

// Capacity returns the embeddable capacity in bits of a buffer at the given
// strength. It is a pure function of (height, width, channels, strength).
func Capacity(buf *imaging.PixelBuffer, strength int) int {
	return buf.Height() * buf.Width() * len(planesFor(strength, buf.Channels()))
}

// Embed writes the payload into a copy of buf at the given strength. The
// serialized payload repeats cyclically until capacity is exhausted; the
// repetition is what lets Extract survive localized tampering. The input
// buffer is never mutated.
func Embed(buf *imaging.PixelBuffer, payload Payload, strength int) (*imaging.PixelBuffer, schemas.EmbedResult, error) {
	if err := buf.Validate(); err != nil {
		return nil, schemas.EmbedResult{}, err
	}
	if strength < MinStrength || strength > MaxStrength {
		return nil, schemas.EmbedResult{}, fmt.Errorf("watermark: strength %d outside [%d,%d]", strength, MinStrength, MaxStrength)
	}

	bits := bytesToBits(payload.MarshalBinary())
	planes := planesFor(strength, buf.Channels())
	capacity := buf.Height() * buf.Width() * len(planes)
	if capacity < len(bits) {
		minPixels := (len(bits) + len(planes) - 1) / len(planes)
		return nil, schemas.EmbedResult{}, &CapacityError{
			Strength:     strength,
			RequiredBits: len(bits),
			CapacityBits: capacity,
			MinPixels:    minPixels,
		}
	}

	out := buf.Clone()
	pix := out.Pix()
	channels := out.Channels()
	bitIdx := 0
	for base := 0; base < len(pix); base += channels {
		for _, pl := range planes {
			i := base + pl.channel
			mask := uint8(1) << uint(pl.bit)
			if bits[bitIdx%len(bits)] == 1 {
				pix[i] |= mask
			} else {
				pix[i] &^= mask
			}
			bitIdx++
		}
	}

	result := schemas.EmbedResult{
		OwnerID:             payload.OwnerID,
		Strength:            strength,
		PlanesUsed:          len(planes),
		CapacityBits:        capacity,
		PayloadBits:         len(bits),
		Copies:              capacity / len(bits),
		CapacityUtilization: float64(len(bits)) / float64(capacity),
	}
	return out, result, nil
}

// Extract scans every supported strength for a payload, since the embed
// strength is not stored out-of-band. Soft outcomes (nothing found, all
// copies damaged) are returned as result states, never as errors.
func Extract(buf *imaging.PixelBuffer) (schemas.ExtractResult, error) {
	if err := buf.Validate(); err != nil {
		return schemas.ExtractResult{}, err
	}

	markerStrength := 0
	prevPlanes := 0
	for strength := MinStrength; strength <= MaxStrength; strength++ {
		planes := planesFor(strength, buf.Channels())
		if len(planes) == prevPlanes {
			continue // grayscale saturation, identical plane set
		}
		prevPlanes = len(planes)

		stream := readBitstream(buf, planes)
		if res, markerSeen := recoverFromStream(stream, strength); res != nil {
			return *res, nil
		} else if markerSeen && markerStrength == 0 {
			markerStrength = strength
		}
	}

	if markerStrength != 0 {
		return schemas.ExtractResult{Validity: schemas.ValidityCorrupted, Strength: markerStrength}, nil
	}
	return schemas.ExtractResult{Validity: schemas.ValidityNotFound}, nil
}

// readBitstream collects the carrier planes of every pixel in raster order
// and packs them into bytes, most significant bit first.
func readBitstream(buf *imaging.PixelBuffer, planes []plane) []byte {
	pix := buf.Pix()
	channels := buf.Channels()
	totalBits := buf.Height() * buf.Width() * len(planes)
	out := make([]byte, totalBits/8)

	bitIdx := 0
	for base := 0; base < len(pix); base += channels {
		for _, pl := range planes {
			if bitIdx/8 >= len(out) {
				return out
			}
			bit := (pix[base+pl.channel] >> uint(pl.bit)) & 1
			out[bitIdx/8] |= bit << uint(7-bitIdx%8)
			bitIdx++
		}
	}
	return out
}

// recoverFromStream tries to reconstruct a payload from one strength's byte
// stream. It returns a result when a payload is confirmed, and reports
// whether a magic marker was sighted at all so the caller can distinguish
// corrupted from not_found.
// candidate is one payload copy located in a bit stream, intact or not.
type candidate struct {
	payload Payload
	raw     []byte
	err     error
}

func recoverFromStream(stream []byte, strength int) (*schemas.ExtractResult, bool) {
	var cands []candidate
	markerSeen := false
	for off := 0; off < len(stream); {
		idx := bytes.Index(stream[off:], magicMarker)
		if idx < 0 {
			break
		}
		pos := off + idx
		markerSeen = true
		p, raw, err := parsePayload(stream[pos:])
		if raw != nil {
			cands = append(cands, candidate{payload: p, raw: raw, err: err})
			off = pos + len(raw)
		} else {
			off = pos + 1
		}
	}
	if len(cands) == 0 {
		return nil, markerSeen
	}

	// Group copies by serialized length; a corrupted length field puts a copy
	// in the wrong group and it simply stops contributing votes. Group
	// selection is by size, then by intactness, then by shortest length, so
	// identical input bytes always recover identically.
	groups := make(map[int][]candidate)
	lengths := make([]int, 0, 4)
	for _, c := range cands {
		if _, seen := groups[len(c.raw)]; !seen {
			lengths = append(lengths, len(c.raw))
		}
		groups[len(c.raw)] = append(groups[len(c.raw)], c)
	}
	sort.Ints(lengths)

	var copies []candidate
	bestIntact := false
	for _, n := range lengths {
		g := groups[n]
		intactHere := false
		for _, c := range g {
			if c.err == nil {
				intactHere = true
				break
			}
		}
		better := len(g) > len(copies) ||
			(len(g) == len(copies) && intactHere && !bestIntact)
		if better {
			copies = g
			bestIntact = intactHere
		}
	}

	var intact *candidate
	anyDamaged := false
	for i := range copies {
		if copies[i].err == nil {
			if intact == nil {
				intact = &copies[i]
			}
		} else {
			anyDamaged = true
		}
	}

	final := voteOrFallback(copies, intact)
	if final == nil {
		return nil, markerSeen
	}

	agree := 0
	for _, c := range copies {
		if bytes.Equal(c.raw, final.raw) {
			agree++
		}
	}

	return &schemas.ExtractResult{
		OwnerID:         final.payload.OwnerID,
		Validity:        schemas.ValidityValid,
		Strength:        strength,
		Copies:          len(copies),
		AgreementRatio:  float64(agree) / float64(len(copies)),
		PartialRecovery: anyDamaged,
	}, true
}

// voteOrFallback reconstructs a payload by per-byte majority vote across
// period-aligned copies. A vote that fails its checksum falls back to any
// intact copy; no intact copy and a failing vote means the stream stays
// unconfirmed at this strength.
func voteOrFallback(copies []candidate, intact *candidate) *candidate {
	if len(copies) > 1 {
		voted := make([]byte, len(copies[0].raw))
		counts := make(map[byte]int)
		for i := range voted {
			for k := range counts {
				delete(counts, k)
			}
			best, bestN := copies[0].raw[i], 0
			for _, c := range copies {
				counts[c.raw[i]]++
				if counts[c.raw[i]] > bestN {
					best, bestN = c.raw[i], counts[c.raw[i]]
				}
			}
			voted[i] = best
		}
		if p, raw, err := parsePayload(voted); err == nil {
			return &candidate{payload: p, raw: raw}
		}
	}
	return intact
}

func bytesToBits(data []byte) []uint8 {
	out := make([]uint8, len(data)*8)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			out[i*8+j] = (b >> uint(7-j)) & 1
		}
	}
	return out
}
