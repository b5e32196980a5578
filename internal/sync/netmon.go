package sync

import (
	"sync"
	"time"
)

const defaultLatencyWindow = 10

// NetworkMonitor keeps a bounded rolling window of observed round-trip
// latencies and exposes their mean. Purely descriptive.
type NetworkMonitor struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

func NewNetworkMonitor(window int) *NetworkMonitor {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &NetworkMonitor{samples: make([]time.Duration, window)}
}

func (m *NetworkMonitor) Record(rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[m.next] = rtt
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.filled = true
	}
}

// Average returns the mean latency over the window, or zero with no samples.
func (m *NetworkMonitor) Average() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.filled {
		n = len(m.samples)
	}
	if n == 0 {
		return 0
	}

	var total time.Duration
	for i := 0; i < n; i++ {
		total += m.samples[i]
	}
	return total / time.Duration(n)
}
