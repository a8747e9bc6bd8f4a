package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies one physical block by tier, group and unit.
type Address struct {
	Tier  uint8
	Group uint8
	Unit  uint8
}

// NullAddress terminates a chain. The allocator never hands it out.
var NullAddress = Address{}

// NewAddress is shorthand for an Address literal.
func NewAddress(tier, group, unit uint8) Address {
	return Address{Tier: tier, Group: group, Unit: unit}
}

// IsNull reports whether a is the end-of-chain sentinel.
func (a Address) IsNull() bool {
	return a == NullAddress
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Tier, a.Group, a.Unit)
}

// ParseAddress parses "tier/group/unit". Colons and commas are accepted as
// separators too.
func ParseAddress(s string) (Address, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '/' || r == ':' || r == ','
	})
	if len(parts) != 3 {
		return NullAddress, fmt.Errorf("%w: %q needs three components", ErrInvalidAddress, s)
	}

	var comps [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return NullAddress, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		comps[i] = uint8(v)
	}

	return Address{Tier: comps[0], Group: comps[1], Unit: comps[2]}, nil
}
