package stats

import (
	"sync"
	"testing"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpRead)

	stats := collector.GetStats()

	if stats["write_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 write operations, got %v", stats["write_ops"])
	}

	if stats["read_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 read operation, got %v", stats["read_ops"])
	}

	if _, exists := stats["last_write_time"]; !exists {
		t.Errorf("Expected last_write_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpRead, 100)
	collector.TrackOperationWithLatency(OpRead, 200)
	collector.TrackOperationWithLatency(OpRead, 300)

	stats := collector.GetStats()

	latencyStats, ok := stats["read_latency"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected read_latency to be a map, got %T", stats["read_latency"])
	}

	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}
	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency 200ns, got %v", avg)
	}
	if min := latencyStats["min_ns"].(uint64); min != 100 {
		t.Errorf("Expected min latency 100ns, got %v", min)
	}
	if max := latencyStats["max_ns"].(uint64); max != 300 {
		t.Errorf("Expected max latency 300ns, got %v", max)
	}
	if ops := stats["read_ops"].(uint64); ops != 3 {
		t.Errorf("Expected latency samples to count as operations, got %v", ops)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewAtomicCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 999

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 3 {
				case 0:
					collector.TrackOperation(OpWrite)
				case 1:
					collector.TrackOperation(OpRead)
				case 2:
					collector.TrackOperationWithLatency(OpErase, uint64(j))
				}
				collector.TrackBytes(j%2 == 0, 1)
			}
		}()
	}

	wg.Wait()

	stats := collector.GetStats()
	expectedOps := uint64(numGoroutines * opsPerGoroutine / 3)

	for _, key := range []string{"write_ops", "read_ops", "erase_ops"} {
		if ops := stats[key].(uint64); ops != expectedOps {
			t.Errorf("Expected %d %s, got %d", expectedOps, key, ops)
		}
	}

	total := stats["total_bytes_read"].(uint64) + stats["total_bytes_written"].(uint64)
	if total != numGoroutines*opsPerGoroutine {
		t.Errorf("Expected %d tracked bytes, got %d", numGoroutines*opsPerGoroutine, total)
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpRead)
	collector.TrackError("checksum_mismatch")

	readStats := collector.GetStatsFiltered("read")
	if _, exists := readStats["read_ops"]; !exists {
		t.Errorf("Expected read_ops in filtered stats")
	}
	if _, exists := readStats["write_ops"]; exists {
		t.Errorf("Did not expect write_ops in read-filtered stats")
	}

	errorStats := collector.GetStatsFiltered("error")
	errs, ok := errorStats["errors"].(map[string]uint64)
	if !ok {
		t.Fatalf("Expected errors map in error-filtered stats")
	}
	if errs["checksum_mismatch"] != 1 {
		t.Errorf("Expected 1 checksum error, got %d", errs["checksum_mismatch"])
	}
}

func TestCollector_TrackChain(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackChain(true, 3)
	collector.TrackChain(true, 1)
	collector.TrackChain(false, 3)

	stats := collector.GetStats()
	expect := map[string]uint64{
		"chains_stored":  2,
		"blocks_stored":  4,
		"chains_deleted": 1,
		"blocks_freed":   3,
	}
	for key, want := range expect {
		if got := stats[key].(uint64); got != want {
			t.Errorf("Expected %s=%d, got %d", key, want, got)
		}
	}
}
