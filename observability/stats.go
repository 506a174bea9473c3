// Package observability aggregates live relay telemetry for the debug
// endpoint. Counters are atomic; nothing here sits on the hot path
// longer than one atomic add.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Snapshot is the JSON shape served by the debug server.
type Snapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	SessionsConnected int64   `json:"sessions_connected"`
	SessionsTotal     uint64  `json:"sessions_total"`
	MessagesRelayed   uint64  `json:"messages_relayed"`
	BytesIn           uint64  `json:"bytes_in"`
	BytesOut          uint64  `json:"bytes_out"`
	StoreErrors       uint64  `json:"store_errors"`
	ProtocolErrors    uint64  `json:"protocol_errors"`
	HandshakeFailures uint64  `json:"handshake_failures"`
	OverflowKicks     uint64  `json:"overflow_kicks"`

	Goroutines int    `json:"goroutines"`
	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`

	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Stats tracks relay activity. All methods are safe for concurrent use.
type Stats struct {
	log   *slog.Logger
	start time.Time

	sessionsConnected atomic.Int64
	sessionsTotal     atomic.Uint64
	messagesRelayed   atomic.Uint64
	bytesIn           atomic.Uint64
	bytesOut          atomic.Uint64
	storeErrors       atomic.Uint64
	protocolErrors    atomic.Uint64
	handshakeFailures atomic.Uint64
	overflowKicks     atomic.Uint64

	procOnce sync.Once
	proc     *process.Process
}

func NewStats(log *slog.Logger) *Stats {
	return &Stats{log: log, start: time.Now()}
}

func (s *Stats) SessionOpened() {
	s.sessionsConnected.Add(1)
	s.sessionsTotal.Add(1)
}

func (s *Stats) SessionClosed()        { s.sessionsConnected.Add(-1) }
func (s *Stats) MessageRelayed()       { s.messagesRelayed.Add(1) }
func (s *Stats) AddBytesIn(n uint64)   { s.bytesIn.Add(n) }
func (s *Stats) AddBytesOut(n uint64)  { s.bytesOut.Add(n) }
func (s *Stats) StoreErrorSeen()       { s.storeErrors.Add(1) }
func (s *Stats) ProtocolErrorSeen()    { s.protocolErrors.Add(1) }
func (s *Stats) HandshakeFailureSeen() { s.handshakeFailures.Add(1) }
func (s *Stats) OverflowKickSeen()     { s.overflowKicks.Add(1) }

func (s *Stats) Connected() int64 { return s.sessionsConnected.Load() }

// Snapshot collects counters plus Go runtime and OS process metrics.
// Process metrics are best effort: a collection failure is logged and
// leaves those fields zero rather than failing the whole snapshot.
func (s *Stats) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snapshot := Snapshot{
		UptimeSeconds:     time.Since(s.start).Seconds(),
		SessionsConnected: s.sessionsConnected.Load(),
		SessionsTotal:     s.sessionsTotal.Load(),
		MessagesRelayed:   s.messagesRelayed.Load(),
		BytesIn:           s.bytesIn.Load(),
		BytesOut:          s.bytesOut.Load(),
		StoreErrors:       s.storeErrors.Load(),
		ProtocolErrors:    s.protocolErrors.Load(),
		HandshakeFailures: s.handshakeFailures.Load(),
		OverflowKicks:     s.overflowKicks.Load(),
		Goroutines:        runtime.NumGoroutine(),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
	}

	if proc := s.process(); proc != nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			snapshot.CPUPercent = cpu
		} else {
			s.log.Debug("cpu stats unavailable", "error", err)
		}
		if info, err := proc.MemoryInfo(); err == nil {
			snapshot.RSSBytes = info.RSS
		} else {
			s.log.Debug("memory stats unavailable", "error", err)
		}
	}
	return snapshot
}

func (s *Stats) process() *process.Process {
	s.procOnce.Do(func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			s.log.Warn("process stats disabled", "error", err)
			return
		}
		s.proc = proc
	})
	return s.proc
}
