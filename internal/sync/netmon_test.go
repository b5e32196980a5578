package sync

import (
	"testing"
	"time"
)

func TestNetworkMonitorAverage(t *testing.T) {
	m := NewNetworkMonitor(10)

	if got := m.Average(); got != 0 {
		t.Errorf("empty monitor average = %v, want 0", got)
	}

	m.Record(100 * time.Millisecond)
	m.Record(200 * time.Millisecond)
	m.Record(300 * time.Millisecond)

	if got := m.Average(); got != 200*time.Millisecond {
		t.Errorf("average = %v, want 200ms", got)
	}
}

func TestNetworkMonitorWindowBound(t *testing.T) {
	m := NewNetworkMonitor(3)

	// The first sample falls out of the window.
	m.Record(time.Hour)
	m.Record(10 * time.Millisecond)
	m.Record(20 * time.Millisecond)
	m.Record(30 * time.Millisecond)

	if got := m.Average(); got != 20*time.Millisecond {
		t.Errorf("average = %v, want 20ms over last 3 samples", got)
	}
}

func TestNetworkMonitorDefaultWindow(t *testing.T) {
	m := NewNetworkMonitor(0)
	for i := 0; i < 25; i++ {
		m.Record(time.Duration(i) * time.Millisecond)
	}
	// Samples 15..24 remain in the default 10-slot window.
	want := (15 + 16 + 17 + 18 + 19 + 20 + 21 + 22 + 23 + 24) * int(time.Millisecond) / 10
	if got := m.Average(); got != time.Duration(want) {
		t.Errorf("average = %v, want %v", got, time.Duration(want))
	}
}
