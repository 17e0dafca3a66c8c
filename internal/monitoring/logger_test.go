package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("loaded %d samples", 42)
	if got != "loaded 42 samples" {
		t.Errorf("logged %q, want %q", got, "loaded 42 samples")
	}
}

func TestSetLoggerNilIsNoOp(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("ignored %s", "message")

	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf must never be nil")
	}
}
