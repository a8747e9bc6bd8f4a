package record

import (
	"errors"
	"fmt"
)

var (
	// Decode failures
	ErrUnknownStatus   = errors.New("unknown record status")
	ErrTruncated       = errors.New("record truncated")
	ErrOverlong        = errors.New("record longer than block")
	ErrOddHexLength    = errors.New("odd hex length")
	ErrNonHexCharacter = errors.New("non-hex character")

	// Construction and persistence failures
	ErrPayloadTooLarge = errors.New("payload exceeds block capacity")
	ErrUnaddressed     = errors.New("record has no address")
	ErrAddressCount    = errors.New("address count does not match chain length")
	ErrInvalidCapacity = errors.New("invalid block capacity")
	ErrInvalidAddress  = errors.New("invalid block address")
)

// DecodeError reports a malformed wire record or hex chunk.
type DecodeError struct {
	Kind     error
	Field    string // status, link, payload
	Offset   int    // digit offset into the input, -1 when not applicable
	Expected int
	Actual   int
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Kind.Error()
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Expected != 0 || e.Actual != 0 {
		msg += fmt.Sprintf(" (expected %d, got %d)", e.Expected, e.Actual)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// FormatError reports caller input that cannot be stored in a record.
type FormatError struct {
	Kind     error
	Expected int
	Actual   int
	Offset   int // first bad digit, for ErrNonHexCharacter
}

func (e *FormatError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrOddHexLength):
		return fmt.Sprintf("format: %v: got %d digits, expected an even count (%d or %d)",
			e.Kind, e.Actual, e.Actual-1, e.Actual+1)
	case errors.Is(e.Kind, ErrNonHexCharacter):
		return fmt.Sprintf("format: %v at offset %d", e.Kind, e.Offset)
	case e.Expected != 0 || e.Actual != 0:
		return fmt.Sprintf("format: %v (expected %d, got %d)", e.Kind, e.Expected, e.Actual)
	default:
		return "format: " + e.Kind.Error()
	}
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}
