package medium

import (
	"fmt"

	"github.com/KevoDB/blockdisk/pkg/config"
	"github.com/KevoDB/blockdisk/pkg/record"
)

// Geometry is the shape of a medium. Components of valid addresses are
// 1-based, so the null address never falls inside a geometry.
type Geometry struct {
	Tiers  int
	Groups int
	Units  int
}

// GeometryFromConfig returns the geometry described by cfg.
func GeometryFromConfig(cfg *config.Config) Geometry {
	t, g, u := cfg.Dimensions()
	return Geometry{Tiers: t, Groups: g, Units: u}
}

// Validate checks that every dimension fits in one address byte.
func (g Geometry) Validate() error {
	if g.Tiers < 1 || g.Groups < 1 || g.Units < 1 ||
		g.Tiers > config.MaxDimension || g.Groups > config.MaxDimension || g.Units > config.MaxDimension {
		return fmt.Errorf("%w: %s", ErrGeometryMismatch, g)
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d", g.Tiers, g.Groups, g.Units)
}

// Count returns the number of blocks.
func (g Geometry) Count() int {
	return g.Tiers * g.Groups * g.Units
}

// Contains reports whether addr names a block of this geometry.
func (g Geometry) Contains(addr record.Address) bool {
	return addr.Tier >= 1 && int(addr.Tier) <= g.Tiers &&
		addr.Group >= 1 && int(addr.Group) <= g.Groups &&
		addr.Unit >= 1 && int(addr.Unit) <= g.Units
}

// Index returns the position of addr in tier, group, unit order.
func (g Geometry) Index(addr record.Address) (int, error) {
	if !g.Contains(addr) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrOutOfRange, addr, g)
	}
	t, gr, u := int(addr.Tier)-1, int(addr.Group)-1, int(addr.Unit)-1
	return (t*g.Groups+gr)*g.Units + u, nil
}

// AddressAt is the inverse of Index.
func (g Geometry) AddressAt(i int) (record.Address, error) {
	if i < 0 || i >= g.Count() {
		return record.NullAddress, fmt.Errorf("%w: index %d not in %s", ErrOutOfRange, i, g)
	}
	u := i % g.Units
	i /= g.Units
	gr := i % g.Groups
	t := i / g.Groups
	return record.NewAddress(uint8(t+1), uint8(gr+1), uint8(u+1)), nil
}

// Addresses lists every address in index order.
func (g Geometry) Addresses() []record.Address {
	addrs := make([]record.Address, 0, g.Count())
	for t := 1; t <= g.Tiers; t++ {
		for gr := 1; gr <= g.Groups; gr++ {
			for u := 1; u <= g.Units; u++ {
				addrs = append(addrs, record.NewAddress(uint8(t), uint8(gr), uint8(u)))
			}
		}
	}
	return addrs
}
