// File: internal/watermark/payload.go
package watermark

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// magicMarker identifies a PNGProtect watermark at the head of every payload
// copy. Serialized layout: marker, 16-bit big-endian owner length, UTF-8 owner
// bytes, 8-bit additive checksum over everything before it.
var magicMarker = []byte{0x50, 0x4E, 0x47, 0x50} // "PNGP"

const (
	// MaxOwnerIDLength bounds the owner identifier in bytes. The length field
	// could address more, but unbounded ids would let a single payload copy
	// outgrow small images at every strength.
	MaxOwnerIDLength = 1024

	payloadOverhead = 4 + 2 + 1 // marker + length + checksum
)

var (
	errNoMarker     = errors.New("watermark: magic marker not present")
	errTruncated    = errors.New("watermark: payload truncated")
	errBadChecksum  = errors.New("watermark: checksum mismatch")
	errBadOwnerID   = errors.New("watermark: owner id must be non-empty valid UTF-8")
	errOwnerTooLong = fmt.Errorf("watermark: owner id exceeds %d bytes", MaxOwnerIDLength)
)

// Payload is the immutable value embedded into a buffer.
type Payload struct {
	OwnerID string
}

// NewPayload validates and wraps an owner identifier.
func NewPayload(ownerID string) (Payload, error) {
	if ownerID == "" || !utf8.ValidString(ownerID) {
		return Payload{}, errBadOwnerID
	}
	if len(ownerID) > MaxOwnerIDLength {
		return Payload{}, errOwnerTooLong
	}
	return Payload{OwnerID: ownerID}, nil
}

// MarshalBinary serializes one payload copy.
func (p Payload) MarshalBinary() []byte {
	owner := []byte(p.OwnerID)
	out := make([]byte, 0, len(owner)+payloadOverhead)
	out = append(out, magicMarker...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(owner)))
	out = append(out, owner...)
	out = append(out, checksum(out))
	return out
}

// SerializedSize returns the byte length of one serialized copy.
func (p Payload) SerializedSize() int {
	return len(p.OwnerID) + payloadOverhead
}

// parsePayload reads one serialized copy from the head of data. It returns the
// raw copy bytes alongside the decoded payload so callers can cross-validate
// copies byte-wise. A checksum failure still returns the raw bytes, letting
// the extractor vote damaged copies against intact ones.
func parsePayload(data []byte) (p Payload, raw []byte, err error) {
	if len(data) < payloadOverhead {
		return Payload{}, nil, errTruncated
	}
	if !bytes.Equal(data[:len(magicMarker)], magicMarker) {
		return Payload{}, nil, errNoMarker
	}
	ownerLen := int(binary.BigEndian.Uint16(data[4:6]))
	if ownerLen == 0 || ownerLen > MaxOwnerIDLength {
		return Payload{}, nil, fmt.Errorf("watermark: implausible owner length %d", ownerLen)
	}
	total := ownerLen + payloadOverhead
	if len(data) < total {
		return Payload{}, nil, errTruncated
	}
	raw = data[:total]
	if checksum(raw[:total-1]) != raw[total-1] {
		return Payload{}, raw, errBadChecksum
	}
	owner := string(raw[6 : 6+ownerLen])
	if !utf8.ValidString(owner) {
		return Payload{}, raw, fmt.Errorf("watermark: owner bytes are not valid UTF-8")
	}
	return Payload{OwnerID: owner}, raw, nil
}

// checksum is the 8-bit additive sum used to confirm a copy. The exact
// algorithm is private to the format; only determinism matters to callers.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
