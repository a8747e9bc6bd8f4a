package medium

import (
	"fmt"
	"sync"
	"time"

	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

// MemoryMedium keeps blocks in a map keyed by address. Blocks that were
// never written read back as the blank record.
type MemoryMedium struct {
	geometry Geometry
	format   record.Format
	opts     options

	mu     sync.RWMutex
	blocks map[record.Address]string
}

// NewMemory creates an empty in-memory medium.
func NewMemory(g Geometry, f record.Format, opts ...Option) (*MemoryMedium, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &MemoryMedium{
		geometry: g,
		format:   f,
		opts:     applyOptions("memory", opts),
		blocks:   make(map[record.Address]string),
	}, nil
}

func (m *MemoryMedium) Geometry() Geometry {
	return m.geometry
}

func (m *MemoryMedium) Format() record.Format {
	return m.format
}

// ReadBlock returns the wire record stored at addr.
func (m *MemoryMedium) ReadBlock(addr record.Address) (string, error) {
	start := time.Now()
	if !m.geometry.Contains(addr) {
		m.opts.trackError("out_of_range")
		return "", fmt.Errorf("%w: %s not in %s", ErrOutOfRange, addr, m.geometry)
	}

	m.mu.RLock()
	wire, ok := m.blocks[addr]
	m.mu.RUnlock()

	if !ok {
		wire = m.format.Blank()
	}

	m.opts.track(stats.OpRead, start, len(wire), false)
	m.opts.logger.Debug("read block %s", addr)
	return wire, nil
}

// WriteBlock replaces the block at addr.
func (m *MemoryMedium) WriteBlock(addr record.Address, wire string) error {
	start := time.Now()
	if !m.geometry.Contains(addr) {
		m.opts.trackError("out_of_range")
		return fmt.Errorf("%w: %s not in %s", ErrOutOfRange, addr, m.geometry)
	}
	if err := checkWire(m.format, addr, wire); err != nil {
		m.opts.trackError("invalid_block")
		return err
	}

	m.mu.Lock()
	m.blocks[addr] = wire
	m.mu.Unlock()

	m.opts.track(stats.OpWrite, start, len(wire), true)
	m.opts.logger.Debug("wrote block %s", addr)
	return nil
}

// Len returns the number of blocks that have been written at least once.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
