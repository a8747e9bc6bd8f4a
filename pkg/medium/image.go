package medium

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/KevoDB/blockdisk/pkg/record"
)

const imageMagic = "BLOCKDISK"
const imageVersion = 1

// Export writes a portable, zstd-compressed image of src. Blank blocks are
// omitted. The stream is a header line followed by one "t/g/u wire" line
// per non-blank block in address order.
func Export(w io.Writer, src record.Reader, g Geometry, f record.Format) (int, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("failed to create ZSTD encoder: %w", err)
	}

	bw := bufio.NewWriter(enc)
	fmt.Fprintf(bw, "%s %d %d %d %d %d\n", imageMagic, imageVersion, g.Tiers, g.Groups, g.Units, f.Capacity())

	blank := f.Blank()
	written := 0
	for _, addr := range g.Addresses() {
		wire, err := src.ReadBlock(addr)
		if err != nil {
			enc.Close()
			return written, fmt.Errorf("failed to export block %s: %w", addr, err)
		}
		if wire == blank {
			continue
		}
		fmt.Fprintf(bw, "%s %s\n", addr, wire)
		written++
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return written, fmt.Errorf("failed to write image: %w", err)
	}
	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("failed to finish image: %w", err)
	}
	return written, nil
}

// Import replaces every block of dst with the contents of an image produced
// by Export. The image geometry and capacity must match. The image is fully
// parsed before dst is touched.
func Import(r io.Reader, dst record.Writer, g Geometry, f record.Format) (int, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 4096), f.WireLength()+64)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadImage, err)
		}
		return 0, fmt.Errorf("%w: empty image", ErrBadImage)
	}

	var magic string
	var version, tiers, groups, units, capacity int
	if _, err := fmt.Sscanf(scanner.Text(), "%s %d %d %d %d %d",
		&magic, &version, &tiers, &groups, &units, &capacity); err != nil || magic != imageMagic {
		return 0, fmt.Errorf("%w: bad header %q", ErrBadImage, scanner.Text())
	}
	if version != imageVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrBadImage, version)
	}
	if (Geometry{Tiers: tiers, Groups: groups, Units: units}) != g || capacity != f.Capacity() {
		return 0, fmt.Errorf("%w: image is %dx%dx%d/%d, medium is %s/%d",
			ErrGeometryMismatch, tiers, groups, units, capacity, g, f.Capacity())
	}

	blocks := make(map[record.Address]string)
	for line := 2; scanner.Scan(); line++ {
		addrText, wire, ok := strings.Cut(scanner.Text(), " ")
		if !ok {
			return 0, fmt.Errorf("%w: line %d", ErrBadImage, line)
		}
		addr, err := record.ParseAddress(addrText)
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: %v", ErrBadImage, line, err)
		}
		if !g.Contains(addr) {
			return 0, fmt.Errorf("%w: line %d: %s not in %s", ErrBadImage, line, addr, g)
		}
		if err := checkWire(f, addr, wire); err != nil {
			return 0, fmt.Errorf("%w: line %d: %v", ErrBadImage, line, err)
		}
		blocks[addr] = wire
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	blank := f.Blank()
	for _, addr := range g.Addresses() {
		wire, ok := blocks[addr]
		if !ok {
			wire = blank
		}
		if err := dst.WriteBlock(addr, wire); err != nil {
			return 0, fmt.Errorf("failed to import block %s: %w", addr, err)
		}
	}

	return len(blocks), nil
}
