package monitoring

import (
	"fmt"
	"testing"
	"time"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("nil logger should mute output")
	}
}

func TestThroughput(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })

	Throughput("histogram", 5000, "events", 2*time.Second)
	if want := "[histogram] 5000 events in 2s (2500/s)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	Throughput("fit", 10, "pixels", 0)
	if want := "[fit] 10 pixels in 0s (0/s)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
