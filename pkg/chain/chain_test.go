package chain

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/KevoDB/blockdisk/pkg/medium"
	"github.com/KevoDB/blockdisk/pkg/record"
)

func setup(t *testing.T) (*medium.MemoryMedium, record.Format) {
	t.Helper()
	f, err := record.NewFormat(8)
	if err != nil {
		t.Fatal(err)
	}
	m, err := medium.NewMemory(medium.Geometry{Tiers: 1, Groups: 2, Units: 8}, f)
	if err != nil {
		t.Fatal(err)
	}
	return m, f
}

func store(t *testing.T, m record.Writer, f record.Format, data []byte, binary bool, addrs ...record.Address) {
	t.Helper()
	records, err := f.BuildChain(data, binary)
	if err != nil {
		t.Fatal(err)
	}
	if err := record.LinkChain(records, addrs); err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if err := r.Persist(m); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadTextFollowsLinks(t *testing.T) {
	m, f := setup(t)
	text := "twenty-one characters"
	addrs := []record.Address{
		record.NewAddress(1, 2, 5),
		record.NewAddress(1, 1, 1),
		record.NewAddress(1, 1, 7),
	}
	store(t, m, f, []byte(text), false, addrs...)

	got, err := ReadText(m, f, addrs[0])
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if got != text {
		t.Errorf("Expected %q, got %q", text, got)
	}

	records, err := Collect(m, f, addrs[0])
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Address() != addrs[i] {
			t.Errorf("Record %d: expected address %s, got %s", i, addrs[i], r.Address())
		}
	}
	if records[2].IsLinked() {
		t.Error("Last record must not be linked")
	}
}

func TestReadDataBinary(t *testing.T) {
	m, f := setup(t)
	data := []byte{0x10, 0x00, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90}
	addrs := []record.Address{record.NewAddress(1, 1, 2), record.NewAddress(1, 1, 3)}
	store(t, m, f, data, true, addrs...)

	got, err := ReadData(m, f, addrs[0])
	if err != nil {
		t.Fatalf("ReadData failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %x, got %x", data, got)
	}
}

func TestWalkDetectsCycle(t *testing.T) {
	m, f := setup(t)
	a, b := record.NewAddress(1, 1, 1), record.NewAddress(1, 1, 2)

	for _, pair := range [][2]record.Address{{a, b}, {b, a}} {
		r := f.NewRecord()
		r.SetTextPayload("loop")
		r.SetAddress(pair[0])
		r.SetLinkAddress(pair[1])
		if err := r.Persist(m); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := ReadText(m, f, a); !errors.Is(err, ErrCycle) {
		t.Errorf("Expected ErrCycle, got %v", err)
	}
}

func TestWalkBrokenChain(t *testing.T) {
	m, f := setup(t)
	addrs := []record.Address{record.NewAddress(1, 1, 1), record.NewAddress(1, 1, 2)}
	store(t, m, f, []byte(strings.Repeat("x", 12)), false, addrs...)

	// Free the second block without fixing the first one's link
	r := f.NewRecord()
	r.SetAddress(addrs[1])
	if err := r.Erase(m); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadText(m, f, addrs[0]); !errors.Is(err, ErrBrokenChain) {
		t.Errorf("Expected ErrBrokenChain, got %v", err)
	}
	if _, err := ReadText(m, f, record.NullAddress); !errors.Is(err, ErrNullStart) {
		t.Errorf("Expected ErrNullStart, got %v", err)
	}
}

func TestWalkPropagatesMediumErrors(t *testing.T) {
	m, f := setup(t)
	r := f.NewRecord()
	r.SetTextPayload("out")
	r.SetAddress(record.NewAddress(1, 1, 1))
	r.SetLinkAddress(record.NewAddress(9, 9, 9))
	if err := r.Persist(m); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadText(m, f, r.Address()); !errors.Is(err, medium.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
