// Package alloc places chains of block records on a medium. It picks free
// blocks first-fit in address order, wires the link addresses and erases
// chains on delete.
package alloc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevoDB/blockdisk/pkg/chain"
	"github.com/KevoDB/blockdisk/pkg/common/log"
	"github.com/KevoDB/blockdisk/pkg/medium"
	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

var ErrNoSpace = errors.New("not enough free blocks")

// Allocator is safe for concurrent use; mutations are serialized.
type Allocator struct {
	medium medium.Medium
	logger log.Logger
	stats  stats.Collector

	mu sync.Mutex
}

// Option configures an Allocator
type Option func(*Allocator)

func WithLogger(logger log.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func WithStats(collector stats.Collector) Option {
	return func(a *Allocator) {
		a.stats = collector
	}
}

// New returns an allocator for m.
func New(m medium.Medium, opts ...Option) *Allocator {
	a := &Allocator{medium: m}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.Discard()
	}
	a.logger = a.logger.WithField("component", "alloc")
	return a
}

// Store writes data as a new chain and returns the address of its first
// block. Nothing is written when the medium lacks space.
func (a *Allocator) Store(data []byte, binary bool) (record.Address, error) {
	start := time.Now()
	f := a.medium.Format()

	records, err := f.BuildChain(data, binary)
	if err != nil {
		return record.NullAddress, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	addrs, err := a.findFree(len(records))
	if err != nil {
		a.trackError("no_space")
		return record.NullAddress, err
	}

	if err := record.LinkChain(records, addrs); err != nil {
		return record.NullAddress, err
	}

	// Last block first: a block is only linked to once its successor exists
	for i := len(records) - 1; i >= 0; i-- {
		if err := records[i].Persist(a.medium); err != nil {
			a.trackError("persist")
			a.rollback(records[i+1:])
			return record.NullAddress, err
		}
	}

	if a.stats != nil {
		a.stats.TrackOperationWithLatency(stats.OpStore, uint64(time.Since(start).Nanoseconds()))
		a.stats.TrackChain(true, uint64(len(records)))
	}
	a.logger.Debug("stored %d bytes in %d blocks at %s", len(data), len(records), addrs[0])
	return addrs[0], nil
}

// StoreText is Store for a text payload.
func (a *Allocator) StoreText(text string) (record.Address, error) {
	return a.Store([]byte(text), false)
}

// Delete erases every block of the chain starting at start and returns the
// number of blocks freed. The chain is read completely before any block is
// erased.
func (a *Allocator) Delete(start record.Address) (int, error) {
	began := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	records, err := chain.Collect(a.medium, a.medium.Format(), start)
	if err != nil {
		a.trackError("walk")
		return 0, err
	}

	for i, r := range records {
		if err := r.Erase(a.medium); err != nil {
			a.trackError("erase")
			return i, err
		}
		a.track(stats.OpErase)
	}

	if a.stats != nil {
		a.stats.TrackOperationWithLatency(stats.OpDelete, uint64(time.Since(began).Nanoseconds()))
		a.stats.TrackChain(false, uint64(len(records)))
	}
	a.logger.Debug("deleted chain at %s (%d blocks)", start, len(records))
	return len(records), nil
}

// ReadText returns the text of the chain starting at start.
func (a *Allocator) ReadText(start record.Address) (string, error) {
	text, err := chain.ReadText(a.medium, a.medium.Format(), start)
	if err != nil {
		a.trackError("walk")
		return "", err
	}
	a.track(stats.OpWalk)
	return text, nil
}

// ReadData returns the raw payload of the chain starting at start.
func (a *Allocator) ReadData(start record.Address) ([]byte, error) {
	data, err := chain.ReadData(a.medium, a.medium.Format(), start)
	if err != nil {
		a.trackError("walk")
		return nil, err
	}
	a.track(stats.OpWalk)
	return data, nil
}

// Free returns the number of available blocks.
func (a *Allocator) Free() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	free := 0
	err := a.scan(func(r *record.Record) bool {
		if r.IsAvailable() {
			free++
		}
		return true
	})
	return free, err
}

// Inspect reads and decodes a single block.
func (a *Allocator) Inspect(addr record.Address) (*record.Record, error) {
	wire, err := a.medium.ReadBlock(addr)
	if err != nil {
		return nil, err
	}
	r, err := a.medium.Format().Deserialize(wire)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", addr, err)
	}
	r.SetAddress(addr)
	return r, nil
}

func (a *Allocator) findFree(n int) ([]record.Address, error) {
	addrs := make([]record.Address, 0, n)
	err := a.scan(func(r *record.Record) bool {
		if r.IsAvailable() {
			addrs = append(addrs, r.Address())
		}
		return len(addrs) < n
	})
	if err != nil {
		return nil, err
	}
	if len(addrs) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoSpace, n, len(addrs))
	}
	return addrs, nil
}

// scan visits blocks in address order until fn returns false. Blocks that
// fail to decode are logged and skipped so one bad block does not make the
// medium unusable.
func (a *Allocator) scan(fn func(*record.Record) bool) error {
	f := a.medium.Format()
	for _, addr := range a.medium.Geometry().Addresses() {
		wire, err := a.medium.ReadBlock(addr)
		if err != nil {
			if errors.Is(err, medium.ErrChecksumMismatch) {
				a.logger.Warn("skipping unreadable block %s: %v", addr, err)
				continue
			}
			return err
		}

		r := f.NewRecord()
		if err := r.Deserialize(wire); err != nil {
			a.logger.Warn("skipping undecodable block %s: %v", addr, err)
			continue
		}
		r.SetAddress(addr)

		if !fn(r) {
			return nil
		}
	}
	return nil
}

// rollback frees blocks written by a Store that failed part way.
func (a *Allocator) rollback(written []*record.Record) {
	for _, r := range written {
		if err := r.Erase(a.medium); err != nil {
			a.logger.Error("failed to release block %s after aborted store: %v", r.Address(), err)
			continue
		}
		a.track(stats.OpErase)
	}
}

func (a *Allocator) track(op stats.OperationType) {
	if a.stats != nil {
		a.stats.TrackOperation(op)
	}
}

func (a *Allocator) trackError(kind string) {
	if a.stats != nil {
		a.stats.TrackError(kind)
	}
}
