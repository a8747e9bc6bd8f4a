package record

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// HeaderSize is the raw size of the block header: status (1 byte) and
	// link address (3 bytes).
	HeaderSize = 4

	// Header layout in hex digits
	statusDigits = 2
	linkDigits   = 6
	headerDigits = statusDigits + linkDigits

	terminator = byte(0x00)
)

// Format carries the per-block payload capacity shared by every record on a
// medium. The zero value is not usable; construct one with NewFormat.
type Format struct {
	capacity int
}

// NewFormat returns a Format whose blocks hold capacity payload bytes.
func NewFormat(capacity int) (Format, error) {
	if capacity < 1 || capacity > 0xFFFF {
		return Format{}, fmt.Errorf("%w: %d bytes", ErrInvalidCapacity, capacity)
	}
	return Format{capacity: capacity}, nil
}

// FormatForBlockSize derives the payload capacity from the medium block size.
func FormatForBlockSize(blockSize int) (Format, error) {
	return NewFormat(blockSize - HeaderSize)
}

// Capacity returns the payload capacity in raw bytes.
func (f Format) Capacity() int {
	return f.capacity
}

// WireLength returns the number of hex digits in one serialized block.
func (f Format) WireLength() int {
	return headerDigits + 2*f.capacity
}

// Blank returns the wire form of a zero-filled block. It decodes as an
// AVAILABLE record with a null link.
func (f Format) Blank() string {
	return strings.Repeat("0", f.WireLength())
}

// Encode appends the terminator to data, hex-encodes it and splits the result
// into capacity-sized chunks. The last chunk is zero padded. At least one
// chunk is always returned.
func (f Format) Encode(data []byte) []string {
	chunkDigits := 2 * f.capacity

	extended := make([]byte, len(data)+1)
	copy(extended, data)
	extended[len(data)] = terminator

	digits := hex.EncodeToString(extended)
	if chunkDigits == 0 {
		return []string{digits}
	}

	n := (len(digits) + chunkDigits - 1) / chunkDigits
	chunks := make([]string, 0, n)
	for start := 0; start < len(digits); start += chunkDigits {
		end := start + chunkDigits
		if end > len(digits) {
			chunks = append(chunks, digits[start:]+strings.Repeat("0", end-len(digits)))
			break
		}
		chunks = append(chunks, digits[start:end])
	}

	return chunks
}

// Decode converts a hex chunk back to raw bytes.
func (f Format) Decode(chunk string) ([]byte, error) {
	return DecodeHex(chunk)
}

// DecodeHex converts pairs of hex digits to bytes. Upper and lower case
// digits are accepted.
func DecodeHex(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		return nil, &DecodeError{
			Kind:     ErrOddHexLength,
			Field:    "payload",
			Offset:   -1,
			Expected: len(digits) + 1,
			Actual:   len(digits),
		}
	}

	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, []byte(digits)); err != nil {
		return nil, &DecodeError{
			Kind:   ErrNonHexCharacter,
			Field:  "payload",
			Offset: firstNonHex(digits),
		}
	}
	return out, nil
}

// ChunkCount returns how many blocks Encode produces for n payload bytes.
func (f Format) ChunkCount(n int) int {
	return (n + 1 + f.capacity - 1) / f.capacity
}

func firstNonHex(s string) int {
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return i
		}
	}
	return -1
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
