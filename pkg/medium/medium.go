// Package medium provides simulated block storage: an in-memory arena and a
// fixed-slot image file, both addressed by record.Address and storing the
// wire form of block records.
package medium

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevoDB/blockdisk/pkg/common/log"
	"github.com/KevoDB/blockdisk/pkg/config"
	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

var (
	ErrOutOfRange       = errors.New("address out of range")
	ErrInvalidLength    = errors.New("invalid block length")
	ErrInvalidData      = errors.New("block is not hex encoded")
	ErrChecksumMismatch = errors.New("block checksum mismatch")
	ErrGeometryMismatch = errors.New("geometry mismatch")
	ErrClosed           = errors.New("medium is closed")
	ErrBadImage         = errors.New("malformed medium image")
)

// Medium is a block store with a fixed geometry and record format.
type Medium interface {
	record.Medium
	Geometry() Geometry
	Format() record.Format
}

type options struct {
	logger   log.Logger
	stats    stats.Collector
	syncMode config.SyncMode
}

// Option configures a medium
type Option func(*options)

// WithLogger sets the logger used for block I/O tracing
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStats records reads, writes and errors into collector
func WithStats(collector stats.Collector) Option {
	return func(o *options) {
		o.stats = collector
	}
}

// WithSyncMode controls whether file writes are fsynced
func WithSyncMode(mode config.SyncMode) Option {
	return func(o *options) {
		o.syncMode = mode
	}
}

func applyOptions(component string, opts []Option) options {
	o := options{syncMode: config.SyncNone}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	o.logger = o.logger.WithField("medium", component)
	return o
}

func (o *options) track(op stats.OperationType, start time.Time, n int, write bool) {
	if o.stats == nil {
		return
	}
	o.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
	o.stats.TrackBytes(write, uint64(n))
}

func (o *options) trackError(kind string) {
	if o.stats != nil {
		o.stats.TrackError(kind)
	}
}

// checkWire validates a block before it is stored.
func checkWire(f record.Format, addr record.Address, wire string) error {
	if len(wire) != f.WireLength() {
		return fmt.Errorf("%w: block %s: expected %d digits, got %d",
			ErrInvalidLength, addr, f.WireLength(), len(wire))
	}
	for i := 0; i < len(wire); i++ {
		c := wire[i]
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') && !('A' <= c && c <= 'F') {
			return fmt.Errorf("%w: block %s: offset %d", ErrInvalidData, addr, i)
		}
	}
	return nil
}
