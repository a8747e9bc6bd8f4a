package medium

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/blockdisk/pkg/common/log"
	"github.com/KevoDB/blockdisk/pkg/config"
	"github.com/KevoDB/blockdisk/pkg/record"
	"github.com/KevoDB/blockdisk/pkg/stats"
)

var testGeometry = Geometry{Tiers: 2, Groups: 3, Units: 4}

func testFormat(t *testing.T) record.Format {
	t.Helper()
	f, err := record.NewFormat(12)
	if err != nil {
		t.Fatalf("Failed to create format: %v", err)
	}
	return f
}

func textWire(t *testing.T, f record.Format, text string, link record.Address) string {
	t.Helper()
	r := f.NewRecord()
	r.SetTextPayload(text)
	r.SetLinkAddress(link)
	wire, err := r.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	return wire
}

func TestGeometryIndexing(t *testing.T) {
	g := testGeometry
	if g.Count() != 24 {
		t.Fatalf("Expected 24 blocks, got %d", g.Count())
	}

	addrs := g.Addresses()
	if len(addrs) != g.Count() {
		t.Fatalf("Expected %d addresses, got %d", g.Count(), len(addrs))
	}
	for i, addr := range addrs {
		idx, err := g.Index(addr)
		if err != nil || idx != i {
			t.Errorf("Index(%s) = %d, %v; expected %d", addr, idx, err, i)
		}
		back, err := g.AddressAt(i)
		if err != nil || back != addr {
			t.Errorf("AddressAt(%d) = %s, %v; expected %s", i, back, err, addr)
		}
	}

	for _, addr := range []record.Address{
		record.NullAddress,
		record.NewAddress(3, 1, 1),
		record.NewAddress(1, 0, 1),
		record.NewAddress(1, 1, 5),
	} {
		if g.Contains(addr) {
			t.Errorf("%s should be outside %s", addr, g)
		}
		if _, err := g.Index(addr); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Expected ErrOutOfRange for %s, got %v", addr, err)
		}
	}

	if err := (Geometry{Tiers: 0, Groups: 1, Units: 1}).Validate(); !errors.Is(err, ErrGeometryMismatch) {
		t.Errorf("Expected invalid geometry error, got %v", err)
	}
}

func TestMemoryMedium(t *testing.T) {
	f := testFormat(t)
	collector := stats.NewAtomicCollector()
	m, err := NewMemory(testGeometry, f, WithStats(collector))
	if err != nil {
		t.Fatalf("Failed to create medium: %v", err)
	}

	addr := record.NewAddress(2, 3, 4)
	wire, err := m.ReadBlock(addr)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if wire != f.Blank() {
		t.Errorf("Unwritten block should be blank, got %q", wire)
	}

	stored := textWire(t, f, "hello", record.NullAddress)
	if err := m.WriteBlock(addr, stored); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if wire, _ := m.ReadBlock(addr); wire != stored {
		t.Errorf("Expected %q, got %q", stored, wire)
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 written block, got %d", m.Len())
	}

	if err := m.WriteBlock(record.NullAddress, stored); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if err := m.WriteBlock(addr, stored[:10]); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("Expected ErrInvalidLength, got %v", err)
	}
	if err := m.WriteBlock(addr, strings.Repeat("x", f.WireLength())); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Expected ErrInvalidData, got %v", err)
	}

	s := collector.GetStats()
	if s["write_ops"].(uint64) != 1 || s["read_ops"].(uint64) != 2 {
		t.Errorf("Unexpected op counts: writes=%v reads=%v", s["write_ops"], s["read_ops"])
	}
	if errs := s["errors"].(map[string]uint64); errs["out_of_range"] != 1 || errs["invalid_block"] != 2 {
		t.Errorf("Unexpected error counts: %v", errs)
	}
}

func TestFileMediumPersists(t *testing.T) {
	f := testFormat(t)
	path := filepath.Join(t.TempDir(), "disk.img")

	var logBuf bytes.Buffer
	logger := log.NewStandardLogger(log.WithOutput(&logBuf), log.WithLevel(log.LevelDebug))

	m, err := CreateFile(path, testGeometry, f, WithLogger(logger), WithSyncMode(config.SyncImmediate))
	if err != nil {
		t.Fatalf("Failed to create file medium: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(testGeometry.Count() * (f.WireLength() + slotTrailer)); info.Size() != want {
		t.Errorf("Expected image size %d, got %d", want, info.Size())
	}

	addr := record.NewAddress(1, 2, 3)
	stored := textWire(t, f, "persisted", record.NewAddress(2, 1, 1))
	if err := m.WriteBlock(addr, stored); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := m.ReadBlock(addr); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}

	if !strings.Contains(logBuf.String(), "medium=file wrote block 1/2/3") {
		t.Errorf("Expected write to be logged, got: %s", logBuf.String())
	}

	m, err = OpenFile(path, testGeometry, f)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer m.Close()

	wire, err := m.ReadBlock(addr)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if wire != stored {
		t.Errorf("Expected %q, got %q", stored, wire)
	}

	r, err := f.Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if r.AsText() != "persisted" || r.Link() != record.NewAddress(2, 1, 1) {
		t.Errorf("Unexpected record %q -> %s", r.AsText(), r.Link())
	}

	blank, err := m.ReadBlock(record.NewAddress(2, 3, 4))
	if err != nil || blank != f.Blank() {
		t.Errorf("Expected blank block, got %q, %v", blank, err)
	}
}

func TestFileMediumDetectsCorruption(t *testing.T) {
	f := testFormat(t)
	path := filepath.Join(t.TempDir(), "disk.img")
	collector := stats.NewAtomicCollector()

	m, err := CreateFile(path, testGeometry, f, WithStats(collector))
	if err != nil {
		t.Fatalf("Failed to create file medium: %v", err)
	}
	defer m.Close()

	addr := record.NewAddress(1, 1, 2)
	if err := m.WriteBlock(addr, textWire(t, f, "abc", record.NullAddress)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Flip one payload digit behind the medium's back
	raw, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	slot := int64(f.WireLength() + slotTrailer)
	if _, err := raw.WriteAt([]byte("7"), slot+9); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	if _, err := m.ReadBlock(addr); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got %v", err)
	}
	if errs := collector.GetStats()["errors"].(map[string]uint64); errs["checksum_mismatch"] != 1 {
		t.Errorf("Expected checksum error to be counted, got %v", errs)
	}
}

func TestOpenFileGeometryMismatch(t *testing.T) {
	f := testFormat(t)
	path := filepath.Join(t.TempDir(), "disk.img")

	m, err := CreateFile(path, testGeometry, f)
	if err != nil {
		t.Fatalf("Failed to create file medium: %v", err)
	}
	m.Close()

	other := Geometry{Tiers: 1, Groups: 3, Units: 4}
	if _, err := OpenFile(path, other, f); !errors.Is(err, ErrGeometryMismatch) {
		t.Errorf("Expected ErrGeometryMismatch, got %v", err)
	}

	if _, err := CreateFile(path, testGeometry, f); err == nil {
		t.Error("Expected CreateFile to refuse an existing image")
	}
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig(dir)
	cfg.Update(func(c *config.Config) {
		c.Tiers, c.Groups, c.Units = 1, 2, 2
		c.BlockSize = 16
	})

	m, err := OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("OpenFromConfig failed: %v", err)
	}
	if m.Format().Capacity() != 12 {
		t.Errorf("Expected capacity 12, got %d", m.Format().Capacity())
	}
	addr := record.NewAddress(1, 2, 2)
	wire := textWire(t, m.Format(), "cfg", record.NullAddress)
	if err := m.WriteBlock(addr, wire); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	m.Close()

	m, err = OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer m.Close()
	if got, _ := m.ReadBlock(addr); got != wire {
		t.Errorf("Expected block to survive reopen, got %q", got)
	}
}
