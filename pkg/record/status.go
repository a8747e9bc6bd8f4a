package record

import "fmt"

// Status is the occupancy state stored in the first header field of a block.
type Status uint8

// Identifier table, version 1. Values are persisted and must never be reused.
const (
	StatusAvailable Status = 0x00
	StatusText      Status = 0x01
	StatusBinary    Status = 0x02
)

var statusNames = map[Status]string{
	StatusAvailable: "AVAILABLE",
	StatusText:      "OCCUPIED_TEXT",
	StatusBinary:    "OCCUPIED_BINARY",
}

// StatusFromIdentifier maps a wire identifier back to its Status.
func StatusFromIdentifier(id uint8) (Status, error) {
	s := Status(id)
	if _, ok := statusNames[s]; !ok {
		return 0, &DecodeError{
			Kind:   fmt.Errorf("%w: 0x%02x", ErrUnknownStatus, id),
			Field:  "status",
			Offset: -1,
		}
	}
	return s, nil
}

// Identifier returns the value written to the wire.
func (s Status) Identifier() uint8 {
	return uint8(s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}
