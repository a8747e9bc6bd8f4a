// Package chain follows link addresses across a medium to reassemble data
// stored in more than one block.
package chain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/KevoDB/blockdisk/pkg/record"
)

var (
	ErrCycle       = errors.New("chain contains a cycle")
	ErrBrokenChain = errors.New("chain links to an available block")
	ErrNullStart   = errors.New("chain starts at the null address")
)

// WalkFunc is called for each record in chain order.
type WalkFunc func(r *record.Record) error

// Walk reads the chain starting at start and calls fn for every record
// until the null link is reached.
func Walk(r record.Reader, f record.Format, start record.Address, fn WalkFunc) error {
	if start.IsNull() {
		return ErrNullStart
	}

	seen := make(map[record.Address]struct{})
	for addr := start; !addr.IsNull(); {
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("%w: %s revisited after %d blocks", ErrCycle, addr, len(seen))
		}
		seen[addr] = struct{}{}

		wire, err := r.ReadBlock(addr)
		if err != nil {
			return err
		}

		rec := f.NewRecord()
		if err := rec.Deserialize(wire); err != nil {
			return fmt.Errorf("block %s: %w", addr, err)
		}
		rec.SetAddress(addr)

		if rec.IsAvailable() {
			return fmt.Errorf("%w: block %s (position %d)", ErrBrokenChain, addr, len(seen)-1)
		}

		if err := fn(rec); err != nil {
			return err
		}
		addr = rec.Link()
	}

	return nil
}

// Collect returns every record of the chain in order.
func Collect(r record.Reader, f record.Format, start record.Address) ([]*record.Record, error) {
	var records []*record.Record
	err := Walk(r, f, start, func(rec *record.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadText concatenates the text rendering of each block.
func ReadText(r record.Reader, f record.Format, start record.Address) (string, error) {
	var sb strings.Builder
	err := Walk(r, f, start, func(rec *record.Record) error {
		sb.WriteString(rec.AsText())
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ReadData concatenates the raw payloads and drops the terminator and padding
// from the final block. Trailing zero bytes of the original data cannot be
// told apart from padding and are dropped as well.
func ReadData(r record.Reader, f record.Format, start record.Address) ([]byte, error) {
	var buf bytes.Buffer
	err := Walk(r, f, start, func(rec *record.Record) error {
		buf.Write(rec.Payload())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\x00"), nil
}
