// Package record implements the block record format: a fixed-width hex
// encoding of one block's status, forward link and payload, plus the chunking
// rules used to spread larger data over a chain of blocks.
package record

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Reader reads the wire form of a block from a medium.
type Reader interface {
	ReadBlock(addr Address) (string, error)
}

// Writer writes the wire form of a block to a medium.
type Writer interface {
	WriteBlock(addr Address, wire string) error
}

// Medium is a block store that can be both read and written.
type Medium interface {
	Reader
	Writer
}

// Record is the in-memory form of one block. A Record is not safe for
// concurrent mutation; the owner serializes access.
type Record struct {
	status   Status
	address  Address // implied by storage position, never serialized
	link     Address
	payload  []byte
	capacity int
}

// NewRecord returns an AVAILABLE record with null addresses and no payload.
func (f Format) NewRecord() *Record {
	return &Record{capacity: f.capacity}
}

// Status returns the occupancy state.
func (r *Record) Status() Status {
	return r.status
}

// Address returns the block this record is stored at.
func (r *Record) Address() Address {
	return r.address
}

// Link returns the address of the next record in the chain.
func (r *Record) Link() Address {
	return r.link
}

// Capacity returns the payload capacity of the record's block.
func (r *Record) Capacity() int {
	return r.capacity
}

// Payload returns a copy of the raw payload bytes.
func (r *Record) Payload() []byte {
	return bytes.Clone(r.payload)
}

// SetAddress assigns the block the record will be persisted to.
func (r *Record) SetAddress(addr Address) {
	r.address = addr
}

// SetLinkAddress points the record at the next block of its chain.
func (r *Record) SetLinkAddress(addr Address) {
	r.link = addr
}

// IsAvailable reports whether the block is free.
func (r *Record) IsAvailable() bool {
	return r.status == StatusAvailable
}

// IsLinked reports whether another block follows this one.
func (r *Record) IsLinked() bool {
	return !r.link.IsNull()
}

// SetTextPayload stores text as the payload and marks the record as text.
func (r *Record) SetTextPayload(text string) {
	r.payload = []byte(text)
	r.status = StatusText
}

// SetBinaryPayload decodes hexDigits into the payload and marks the record as
// binary. The record is left unchanged on error.
func (r *Record) SetBinaryPayload(hexDigits string) error {
	if len(hexDigits)%2 != 0 {
		return &FormatError{
			Kind:     ErrOddHexLength,
			Expected: len(hexDigits) + 1,
			Actual:   len(hexDigits),
		}
	}

	data, err := DecodeHex(hexDigits)
	if err != nil {
		return &FormatError{Kind: ErrNonHexCharacter, Offset: firstNonHex(hexDigits)}
	}

	r.payload = data
	r.status = StatusBinary
	return nil
}

// SetPayload stores raw bytes, marking the record as text or binary.
func (r *Record) SetPayload(data []byte, binary bool) {
	r.payload = bytes.Clone(data)
	if binary {
		r.status = StatusBinary
	} else {
		r.status = StatusText
	}
}

// AsText renders the payload for display. Text payloads lose every
// terminator byte, binary payloads are shown as the hex of their first
// encoded chunk, and available blocks render as the empty string.
func (r *Record) AsText() string {
	switch r.status {
	case StatusText:
		return string(bytes.ReplaceAll(r.payload, []byte{terminator}, nil))
	case StatusBinary:
		return Format{capacity: r.capacity}.Encode(r.payload)[0]
	default:
		return ""
	}
}

// Serialize returns the fixed-width wire form of the record.
func (r *Record) Serialize() (string, error) {
	if r.capacity < 1 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidCapacity, r.capacity)
	}
	if len(r.payload) > r.capacity {
		return "", &FormatError{
			Kind:     ErrPayloadTooLarge,
			Expected: r.capacity,
			Actual:   len(r.payload),
		}
	}

	f := Format{capacity: r.capacity}

	var sb strings.Builder
	sb.Grow(f.WireLength())
	sb.WriteString(hex.EncodeToString([]byte{
		r.status.Identifier(),
		r.link.Tier,
		r.link.Group,
		r.link.Unit,
	}))
	// A full-capacity payload spills its terminator into a second chunk,
	// which is dropped here.
	sb.WriteString(f.Encode(r.payload)[0])

	return sb.String(), nil
}

// Deserialize parses a wire record. The returned record has a null self
// address; the caller sets it from the storage position.
func (f Format) Deserialize(wire string) (*Record, error) {
	r := f.NewRecord()
	if err := r.Deserialize(wire); err != nil {
		return nil, err
	}
	return r, nil
}

// Deserialize replaces the record's status, link and payload with the
// contents of wire. The self address is kept. On error the record is
// unchanged.
func (r *Record) Deserialize(wire string) error {
	f := Format{capacity: r.capacity}
	digits := stripSpace(wire)

	// Reported before the length checks, which count bytes
	if i := firstNonHex(digits); i >= 0 {
		return &DecodeError{
			Kind:   ErrNonHexCharacter,
			Field:  fieldAt(i),
			Offset: i,
		}
	}

	if len(digits) < f.WireLength() {
		return &DecodeError{
			Kind:     ErrTruncated,
			Offset:   -1,
			Expected: f.WireLength(),
			Actual:   len(digits),
		}
	}
	if len(digits) > f.WireLength() {
		return &DecodeError{
			Kind:     ErrOverlong,
			Offset:   -1,
			Expected: f.WireLength(),
			Actual:   len(digits),
		}
	}

	statusID, err := parseField(digits, 0, "status")
	if err != nil {
		return err
	}
	status, err := StatusFromIdentifier(statusID)
	if err != nil {
		return err
	}

	var link [3]uint8
	for i := range link {
		off := statusDigits + 2*i
		if link[i], err = parseField(digits, off, "link"); err != nil {
			return err
		}
	}

	payload, err := DecodeHex(digits[headerDigits:])
	if err != nil {
		if de, ok := err.(*DecodeError); ok && de.Offset >= 0 {
			de.Offset += headerDigits
		}
		return err
	}

	r.status = status
	r.link = Address{Tier: link[0], Group: link[1], Unit: link[2]}
	r.payload = payload
	return nil
}

// Persist writes the record to w at its own address.
func (r *Record) Persist(w Writer) error {
	if r.address.IsNull() {
		return ErrUnaddressed
	}

	wire, err := r.Serialize()
	if err != nil {
		return err
	}

	if err := w.WriteBlock(r.address, wire); err != nil {
		return fmt.Errorf("failed to persist block %s: %w", r.address, err)
	}
	return nil
}

// Erase marks the record available and persists it. The payload is kept in
// memory and on the medium until the block is reused.
func (r *Record) Erase(w Writer) error {
	if r.address.IsNull() {
		return ErrUnaddressed
	}
	prev := r.status
	r.status = StatusAvailable
	if err := r.Persist(w); err != nil {
		r.status = prev
		return err
	}
	return nil
}

func fieldAt(off int) string {
	switch {
	case off < statusDigits:
		return "status"
	case off < headerDigits:
		return "link"
	default:
		return "payload"
	}
}

func parseField(digits string, off int, field string) (uint8, error) {
	v, err := strconv.ParseUint(digits[off:off+2], 16, 8)
	if err != nil {
		return 0, &DecodeError{
			Kind:   ErrNonHexCharacter,
			Field:  field,
			Offset: off + firstNonHex(digits[off:off+2]),
		}
	}
	return uint8(v), nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
