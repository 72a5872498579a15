package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts handled messages per command kind.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	commands map[string]*CommandMetrics
}

// CommandMetrics holds the counters of one command kind.
type CommandMetrics struct {
	count         atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		commands: make(map[string]*CommandMetrics),
	}
}

// Record records one handled message of the given command kind.
func (m *Metrics) Record(command string, duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	cm := m.command(command)
	cm.count.Add(1)
	cm.totalDuration.Add(duration.Milliseconds())
	if failed {
		m.requestFailed.Add(1)
		cm.errorCount.Add(1)
	}
}

func (m *Metrics) command(name string) *CommandMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm, ok := m.commands[name]
	if !ok {
		cm = &CommandMetrics{}
		m.commands[name] = cm
	}
	return cm
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	commands := make(map[string]*CommandMetricsSnapshot, len(m.commands))
	for name, cm := range m.commands {
		snap := &CommandMetricsSnapshot{
			Count:      cm.count.Load(),
			ErrorCount: cm.errorCount.Load(),
		}
		if snap.Count > 0 {
			snap.AverageDurationMs = cm.totalDuration.Load() / snap.Count
		}
		commands[name] = snap
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Commands:      commands,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                              `json:"request_total"`
	RequestFailed int64                              `json:"request_failed"`
	Commands      map[string]*CommandMetricsSnapshot `json:"commands"`
}

// CommandMetricsSnapshot represents metrics for one command kind.
type CommandMetricsSnapshot struct {
	Count             int64 `json:"count"`
	ErrorCount        int64 `json:"error_count"`
	AverageDurationMs int64 `json:"average_duration_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
