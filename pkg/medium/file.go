package medium

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/blockdisk/pkg/config"
	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

const (
	// Slot layout
	// - wire record (Format.WireLength() digits)
	// - xxhash64 of the wire record (16 hex digits)
	// - newline
	checksumDigits = 16
	slotTrailer    = checksumDigits + 1
)

// FileMedium stores one fixed-size slot per block in a single image file.
type FileMedium struct {
	geometry Geometry
	format   record.Format
	opts     options
	path     string
	slotSize int64

	mu     sync.RWMutex
	file   *os.File
	closed bool
}

// CreateFile creates a new image at path with every block blank. It fails if
// the file already exists.
func CreateFile(path string, g Geometry, f record.Format, opts ...Option) (*FileMedium, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create medium image: %w", err)
	}

	m := newFileMedium(path, file, g, f, opts)

	blank := m.encodeSlot(f.Blank())
	w := bufio.NewWriterSize(file, 64*1024)
	for i := 0; i < g.Count(); i++ {
		if _, err := w.Write(blank); err != nil {
			file.Close()
			os.Remove(path)
			return nil, fmt.Errorf("failed to format medium image: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to format medium image: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to sync medium image: %w", err)
	}

	m.opts.logger.Info("created %s medium image %s (%d blocks, %d byte slots)",
		g, path, g.Count(), m.slotSize)
	return m, nil
}

// OpenFile opens an existing image. The file size must match the geometry
// and format exactly.
func OpenFile(path string, g Geometry, f record.Format, opts ...Option) (*FileMedium, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open medium image: %w", err)
	}

	m := newFileMedium(path, file, g, f, opts)

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat medium image: %w", err)
	}
	if want := m.slotSize * int64(g.Count()); info.Size() != want {
		file.Close()
		return nil, fmt.Errorf("%w: image %s is %d bytes, expected %d for %s",
			ErrGeometryMismatch, path, info.Size(), want, g)
	}

	m.opts.logger.Info("opened medium image %s", path)
	return m, nil
}

// OpenFromConfig opens the image named by cfg, creating it if needed.
func OpenFromConfig(cfg *config.Config, opts ...Option) (*FileMedium, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := record.NewFormat(cfg.Capacity())
	if err != nil {
		return nil, err
	}
	g := GeometryFromConfig(cfg)
	opts = append([]Option{WithSyncMode(cfg.SyncMode)}, opts...)

	m, err := OpenFile(cfg.ImageFile, g, f, opts...)
	if errors.Is(err, os.ErrNotExist) {
		return CreateFile(cfg.ImageFile, g, f, opts...)
	}
	return m, err
}

func newFileMedium(path string, file *os.File, g Geometry, f record.Format, opts []Option) *FileMedium {
	return &FileMedium{
		geometry: g,
		format:   f,
		opts:     applyOptions("file", opts),
		path:     path,
		slotSize: int64(f.WireLength() + slotTrailer),
		file:     file,
	}
}

func (m *FileMedium) Geometry() Geometry {
	return m.geometry
}

func (m *FileMedium) Format() record.Format {
	return m.format
}

// Path returns the image file path.
func (m *FileMedium) Path() string {
	return m.path
}

// ReadBlock reads and verifies the slot for addr.
func (m *FileMedium) ReadBlock(addr record.Address) (string, error) {
	start := time.Now()
	offset, err := m.offset(addr)
	if err != nil {
		m.opts.trackError("out_of_range")
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", ErrClosed
	}

	slot := make([]byte, m.slotSize)
	if _, err := m.file.ReadAt(slot, offset); err != nil {
		m.opts.trackError("io")
		return "", fmt.Errorf("failed to read block %s: %w", addr, err)
	}

	wire, err := m.decodeSlot(slot)
	if err != nil {
		m.opts.trackError("checksum_mismatch")
		m.opts.logger.Warn("block %s failed verification: %v", addr, err)
		return "", fmt.Errorf("block %s: %w", addr, err)
	}

	m.opts.track(stats.OpRead, start, len(wire), false)
	m.opts.logger.Debug("read block %s", addr)
	return wire, nil
}

// WriteBlock writes wire into the slot for addr.
func (m *FileMedium) WriteBlock(addr record.Address, wire string) error {
	start := time.Now()
	offset, err := m.offset(addr)
	if err != nil {
		m.opts.trackError("out_of_range")
		return err
	}
	if err := checkWire(m.format, addr, wire); err != nil {
		m.opts.trackError("invalid_block")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if _, err := m.file.WriteAt(m.encodeSlot(wire), offset); err != nil {
		m.opts.trackError("io")
		return fmt.Errorf("failed to write block %s: %w", addr, err)
	}
	if m.opts.syncMode == config.SyncImmediate {
		if err := m.file.Sync(); err != nil {
			m.opts.trackError("io")
			return fmt.Errorf("failed to sync block %s: %w", addr, err)
		}
	}

	m.opts.track(stats.OpWrite, start, len(wire), true)
	m.opts.logger.Debug("wrote block %s", addr)
	return nil
}

// Sync flushes the image to stable storage.
func (m *FileMedium) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.file.Sync()
}

// Close syncs and closes the image. Further calls fail with ErrClosed.
func (m *FileMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.file.Sync(); err != nil {
		m.file.Close()
		return fmt.Errorf("failed to sync medium image: %w", err)
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("failed to close medium image: %w", err)
	}
	m.opts.logger.Info("closed medium image %s", m.path)
	return nil
}

func (m *FileMedium) offset(addr record.Address) (int64, error) {
	idx, err := m.geometry.Index(addr)
	if err != nil {
		return 0, err
	}
	return int64(idx) * m.slotSize, nil
}

func (m *FileMedium) encodeSlot(wire string) []byte {
	slot := make([]byte, 0, m.slotSize)
	slot = append(slot, wire...)
	slot = append(slot, fmt.Sprintf("%016x", xxhash.Sum64String(wire))...)
	return append(slot, '\n')
}

func (m *FileMedium) decodeSlot(slot []byte) (string, error) {
	n := m.format.WireLength()
	if slot[len(slot)-1] != '\n' {
		return "", fmt.Errorf("%w: missing slot terminator", ErrChecksumMismatch)
	}

	wire := string(slot[:n])
	stored, err := strconv.ParseUint(string(slot[n:n+checksumDigits]), 16, 64)
	if err != nil {
		return "", fmt.Errorf("%w: unreadable checksum", ErrChecksumMismatch)
	}
	if computed := xxhash.Sum64String(wire); stored != computed {
		return "", fmt.Errorf("%w: stored %016x, computed %016x", ErrChecksumMismatch, stored, computed)
	}
	return wire, nil
}
