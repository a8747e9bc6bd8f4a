package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KevoDB/blockdisk/pkg/alloc"
	"github.com/KevoDB/blockdisk/pkg/common/log"
	"github.com/KevoDB/blockdisk/pkg/config"
	"github.com/KevoDB/blockdisk/pkg/medium"
	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

const helpText = `
blockdisk - a simulated fixed-block storage medium.

Commands:
  .help                   - Show this help message
  .open PATH              - Open (or create) a medium in directory PATH
  .close                  - Close the current medium
  .exit                   - Exit the program
  .stats                  - Show I/O statistics
  .geometry               - Show geometry and block format

  STORE text...           - Store text, print the first block address
  STOREHEX digits         - Store hex-encoded binary data
  CAT t/g/u               - Print the text of the chain starting at t/g/u
  HEX t/g/u               - Print the chain payload as hex
  DUMP t/g/u              - Print one block: status, link and wire form
  DELETE t/g/u            - Erase the chain starting at t/g/u
  FREE                    - Count available blocks
  EXPORT FILE             - Write a compressed image of the medium
  IMPORT FILE             - Replace the medium with an exported image
`

// Shell executes interactive commands against one open medium.
type Shell struct {
	base   *config.Config
	logger log.Logger
	out    io.Writer

	path      string
	medium    *medium.FileMedium
	allocator *alloc.Allocator
	stats     *stats.AtomicCollector
}

// NewShell returns a shell with no medium open. base supplies the geometry
// used when a new medium is created.
func NewShell(base *config.Config, logger log.Logger, out io.Writer) *Shell {
	return &Shell{base: base, logger: logger, out: out}
}

// Prompt returns the prompt for the current state.
func (s *Shell) Prompt() string {
	if s.path != "" {
		return fmt.Sprintf("blockdisk:%s> ", s.path)
	}
	return "blockdisk> "
}

// Open opens the medium stored in dir, creating it if necessary.
func (s *Shell) Open(dir string) error {
	if s.medium != nil {
		if err := s.Close(); err != nil {
			return err
		}
	}

	base := s.base.Clone()
	base.ImageFile = filepath.Join(dir, config.DefaultImageFileName)
	cfg, created, err := config.LoadOrCreate(dir, base)
	if err != nil {
		return err
	}

	collector := stats.NewAtomicCollector()
	m, err := medium.OpenFromConfig(cfg,
		medium.WithLogger(s.logger),
		medium.WithStats(collector),
	)
	if err != nil {
		return err
	}

	s.path = dir
	s.medium = m
	s.stats = collector
	s.allocator = alloc.New(m, alloc.WithLogger(s.logger), alloc.WithStats(collector))

	if created {
		fmt.Fprintf(s.out, "Created medium at %s\n", dir)
	} else {
		fmt.Fprintf(s.out, "Medium opened at %s\n", dir)
	}
	return nil
}

// Close closes the open medium, if any.
func (s *Shell) Close() error {
	if s.medium == nil {
		return nil
	}
	err := s.medium.Close()
	s.medium, s.allocator, s.stats, s.path = nil, nil, nil, ""
	return err
}

// Execute runs one command line. It returns true when the shell should exit.
func (s *Shell) Execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	parts := strings.Fields(line)
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		return s.dotCommand(strings.ToLower(cmd), parts[1:])
	}

	if s.medium == nil {
		fmt.Fprintln(s.out, "No medium open")
		return false
	}

	var err error
	switch cmd {
	case "STORE":
		// Keep the caller's spacing inside the text
		text := strings.TrimSpace(line[len(parts[0]):])
		err = s.store([]byte(text), false)

	case "STOREHEX":
		if len(parts) != 2 {
			err = errors.New("usage: STOREHEX digits")
			break
		}
		var data []byte
		data, err = decodeUserHex(parts[1])
		if err == nil {
			err = s.store(data, true)
		}

	case "CAT", "HEX", "DUMP", "DELETE":
		if len(parts) != 2 {
			err = fmt.Errorf("usage: %s t/g/u", cmd)
			break
		}
		var addr record.Address
		if addr, err = record.ParseAddress(parts[1]); err == nil {
			err = s.addressCommand(cmd, addr)
		}

	case "FREE":
		var free int
		if free, err = s.allocator.Free(); err == nil {
			fmt.Fprintf(s.out, "%d of %d blocks available\n", free, s.medium.Geometry().Count())
		}

	case "EXPORT", "IMPORT":
		if len(parts) != 2 {
			err = fmt.Errorf("usage: %s FILE", cmd)
			break
		}
		err = s.imageCommand(cmd, parts[1])

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
	}
	return false
}

func (s *Shell) dotCommand(cmd string, args []string) bool {
	switch cmd {
	case ".help":
		fmt.Fprint(s.out, helpText)

	case ".open":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Error: Missing path argument")
			return false
		}
		if err := s.Open(args[0]); err != nil {
			fmt.Fprintf(s.out, "Error opening medium: %s\n", err)
		}

	case ".close":
		if s.medium == nil {
			fmt.Fprintln(s.out, "No medium open")
			return false
		}
		path := s.path
		if err := s.Close(); err != nil {
			fmt.Fprintf(s.out, "Error closing medium: %s\n", err)
		} else {
			fmt.Fprintf(s.out, "Medium %s closed\n", path)
		}

	case ".exit":
		if err := s.Close(); err != nil {
			fmt.Fprintf(s.out, "Error closing medium: %s\n", err)
		}
		fmt.Fprintln(s.out, "Goodbye!")
		return true

	case ".stats":
		if s.stats == nil {
			fmt.Fprintln(s.out, "No medium open")
			return false
		}
		s.printStats()

	case ".geometry":
		if s.medium == nil {
			fmt.Fprintln(s.out, "No medium open")
			return false
		}
		g, f := s.medium.Geometry(), s.medium.Format()
		fmt.Fprintf(s.out, "Geometry: %s (%d blocks)\n", g, g.Count())
		fmt.Fprintf(s.out, "Capacity: %d bytes per block\n", f.Capacity())
		fmt.Fprintf(s.out, "Wire length: %d digits\n", f.WireLength())
		fmt.Fprintf(s.out, "Image: %s\n", s.medium.Path())

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	return false
}

func (s *Shell) store(data []byte, binary bool) error {
	addr, err := s.allocator.Store(data, binary)
	if err != nil {
		return err
	}
	blocks := s.medium.Format().ChunkCount(len(data))
	fmt.Fprintf(s.out, "Stored %d bytes in %d block(s) at %s\n", len(data), blocks, addr)
	return nil
}

func (s *Shell) addressCommand(cmd string, addr record.Address) error {
	switch cmd {
	case "CAT":
		text, err := s.allocator.ReadText(addr)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, text)

	case "HEX":
		data, err := s.allocator.ReadData(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%x\n", data)

	case "DUMP":
		r, err := s.allocator.Inspect(addr)
		if err != nil {
			return err
		}
		wire, err := r.Serialize()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Block %s\n", addr)
		fmt.Fprintf(s.out, "  Status: %s\n", r.Status())
		if r.IsLinked() {
			fmt.Fprintf(s.out, "  Link:   %s\n", r.Link())
		} else {
			fmt.Fprintf(s.out, "  Link:   none\n")
		}
		fmt.Fprintf(s.out, "  Text:   %q\n", r.AsText())
		fmt.Fprintf(s.out, "  Wire:   %s\n", wire)

	case "DELETE":
		n, err := s.allocator.Delete(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Freed %d block(s)\n", n)
	}
	return nil
}

func (s *Shell) imageCommand(cmd, path string) error {
	g, f := s.medium.Geometry(), s.medium.Format()

	if cmd == "EXPORT" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		n, err := medium.Export(file, s.medium, g, f)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		s.stats.TrackOperation(stats.OpExport)
		fmt.Fprintf(s.out, "Exported %d block(s) to %s\n", n, path)
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	n, err := medium.Import(file, s.medium, g, f)
	if err != nil {
		return err
	}
	if err := s.medium.Sync(); err != nil {
		return err
	}
	s.stats.TrackOperation(stats.OpImport)
	fmt.Fprintf(s.out, "Imported %d block(s) from %s\n", n, path)
	return nil
}

func (s *Shell) printStats() {
	st := s.stats.GetStats()

	getUint64 := func(key string) uint64 {
		if v, ok := st[key].(uint64); ok {
			return v
		}
		return 0
	}

	fmt.Fprintln(s.out, "Operations:")
	for _, op := range []stats.OperationType{
		stats.OpRead, stats.OpWrite, stats.OpStore, stats.OpDelete, stats.OpErase, stats.OpWalk,
	} {
		fmt.Fprintf(s.out, "  %-7s %d\n", op, getUint64(string(op)+"_ops"))
	}

	fmt.Fprintln(s.out, "Chains:")
	fmt.Fprintf(s.out, "  stored  %d (%d blocks)\n", getUint64("chains_stored"), getUint64("blocks_stored"))
	fmt.Fprintf(s.out, "  deleted %d (%d blocks)\n", getUint64("chains_deleted"), getUint64("blocks_freed"))

	fmt.Fprintln(s.out, "Bytes:")
	fmt.Fprintf(s.out, "  read    %d\n", getUint64("total_bytes_read"))
	fmt.Fprintf(s.out, "  written %d\n", getUint64("total_bytes_written"))

	if errs, ok := st["errors"].(map[string]uint64); ok && len(errs) > 0 {
		kinds := make([]string, 0, len(errs))
		for k := range errs {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		fmt.Fprintln(s.out, "Errors:")
		for _, k := range kinds {
			fmt.Fprintf(s.out, "  %-17s %d\n", k, errs[k])
		}
	}
}

// decodeUserHex validates hex typed at the prompt the same way a binary
// record does, so the user sees the expected versus actual length.
func decodeUserHex(digits string) ([]byte, error) {
	var probe record.Record
	if err := probe.SetBinaryPayload(digits); err != nil {
		return nil, err
	}
	return probe.Payload(), nil
}
