package monitoring

import (
	"testing"
)

func TestSetLoggerNilInstallsNoop(t *testing.T) {
	defer SetLogger(nil)

	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf must never be nil")
	}
	// Must not panic.
	Logf("dropped %d frames", 3)
}

func TestSetLoggerRedirects(t *testing.T) {
	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	defer SetLogger(nil)

	Logf("hello %s", "world")
	if got != "hello %s" {
		t.Errorf("logger not redirected, got %q", got)
	}
}

func TestMuteRestores(t *testing.T) {
	var count int
	SetLogger(func(string, ...interface{}) { count++ })
	defer SetLogger(nil)

	restore := Mute()
	Logf("silenced")
	if count != 0 {
		t.Errorf("expected muted logger, saw %d calls", count)
	}

	restore()
	Logf("audible")
	if count != 1 {
		t.Errorf("expected restored logger, saw %d calls", count)
	}
}
