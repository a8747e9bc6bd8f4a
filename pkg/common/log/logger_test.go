package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewStandardLogger(
		WithOutput(&buf),
		WithLevel(LevelDebug),
		WithClock(fixedClock),
	)

	logger.Debug("read block %s", "1/1/1")
	if got := buf.String(); got != "[2024-03-01 12:00:00.000] [DEBUG] read block 1/1/1\n" {
		t.Errorf("Unexpected debug line: %q", got)
	}
	buf.Reset()

	for _, tc := range []struct {
		fn    func(string, ...interface{})
		level string
	}{
		{logger.Info, "[INFO]"},
		{logger.Warn, "[WARN]"},
		{logger.Error, "[ERROR]"},
	} {
		tc.fn("message")
		if !strings.Contains(buf.String(), tc.level) {
			t.Errorf("Expected %s entry, got: %s", tc.level, buf.String())
		}
		buf.Reset()
	}

	// Level filtering
	logger.SetLevel(LevelError)
	logger.Info("This info message should not appear")
	logger.Warn("This warning message should not appear")
	logger.Error("This error message should appear")
	output := buf.String()
	if strings.Contains(output, "should not appear") ||
		!strings.Contains(output, "This error message should appear") {
		t.Errorf("Level filtering failed, got: %s", output)
	}
	if logger.GetLevel() != LevelError {
		t.Errorf("GetLevel failed, expected LevelError, got: %v", logger.GetLevel())
	}
}

func TestFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithClock(fixedClock))

	logger.WithFields(map[string]interface{}{
		"medium": "file",
		"addr":   "1/2/3",
		"bytes":  128,
	}).Info("wrote block")

	want := "[2024-03-01 12:00:00.000] [INFO] addr=1/2/3 bytes=128 medium=file wrote block\n"
	if buf.String() != want {
		t.Errorf("Unexpected output:\n got: %q\nwant: %q", buf.String(), want)
	}
	buf.Reset()

	child := logger.WithField("component", "alloc")
	child.WithField("chain", 3).Info("stored")
	if !strings.Contains(buf.String(), "chain=3 component=alloc stored") {
		t.Errorf("Nested fields lost, got: %s", buf.String())
	}
}

func TestDiscardAndOff(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelOff))
	logger.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("LevelOff should drop everything, got: %s", buf.String())
	}

	// Discard must not panic or write anywhere visible
	Discard().Error("nothing")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelOff,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; expected %v", in, got, err, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestDefaultLogger(t *testing.T) {
	originalLogger := GetDefaultLogger()
	defer SetDefaultLogger(originalLogger)

	var buf bytes.Buffer
	custom := NewStandardLogger(
		WithOutput(&buf),
		WithLevel(LevelInfo),
	)
	SetDefaultLogger(custom)
	if GetDefaultLogger() != custom {
		t.Error("Expected GetDefaultLogger to return the logger just set")
	}

	Info("Global info message")
	if !strings.Contains(buf.String(), "[INFO]") || !strings.Contains(buf.String(), "Global info message") {
		t.Errorf("Global info logging failed, got: %s", buf.String())
	}
	buf.Reset()

	Component("medium").Info("opened")
	if !strings.Contains(buf.String(), "component=medium opened") {
		t.Errorf("Component logger failed, got: %s", buf.String())
	}
}
