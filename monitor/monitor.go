package monitor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"secure-llm-assistant/errs"
)

// Snapshot is one telemetry sample. GPU and temperature are optional
// because not every machine exposes them. Snapshots are ephemeral:
// only the most recent one is retained, nothing is persisted.
type Snapshot struct {
	CPUUsage    float64  `json:"cpu_usage"`
	MemoryUsage float64  `json:"memory_usage"`
	GPUUsage    *float64 `json:"gpu_usage,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	IsSafe      bool     `json:"is_safe"`
}

// Thresholds are the per-metric unsafe limits, in the same units as
// the snapshot fields.
type Thresholds struct {
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	GPU         float64 `json:"gpu"`
	Temperature float64 `json:"temperature"`
}

// DefaultThresholds returns the stock limits for a desktop machine.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 85, Memory: 90, GPU: 85, Temperature: 80}
}

// Band grades one metric against its threshold.
type Band int

const (
	BandNominal Band = iota
	BandWarning
	BandUnsafe
)

// bandOf grades value relative to threshold: below 60% of the limit is
// nominal, 60-80% is warning, 80% and above is unsafe.
func bandOf(value, threshold float64) Band {
	if threshold <= 0 {
		return BandNominal
	}
	ratio := value / threshold
	switch {
	case ratio < 0.6:
		return BandNominal
	case ratio < 0.8:
		return BandWarning
	default:
		return BandUnsafe
	}
}

// Gate is the resource admission gate. Evaluate is a pure function of
// a snapshot; Observe records the latest sample; Admit answers whether
// a new inference dispatch may start. The gate is advisory at
// admission only and never cancels work already in flight.
type Gate struct {
	thresholds Thresholds
	latest     atomic.Pointer[Snapshot]
}

// NewGate creates a gate with the given thresholds.
func NewGate(thresholds Thresholds) *Gate {
	return &Gate{thresholds: thresholds}
}

// Evaluate computes the safety verdict for a snapshot. Any metric in
// the unsafe band forces false. Optional metrics are skipped when
// absent.
func (g *Gate) Evaluate(s Snapshot) bool {
	if bandOf(s.CPUUsage, g.thresholds.CPU) == BandUnsafe {
		return false
	}
	if bandOf(s.MemoryUsage, g.thresholds.Memory) == BandUnsafe {
		return false
	}
	if s.GPUUsage != nil && bandOf(*s.GPUUsage, g.thresholds.GPU) == BandUnsafe {
		return false
	}
	if s.Temperature != nil && bandOf(*s.Temperature, g.thresholds.Temperature) == BandUnsafe {
		return false
	}
	return true
}

// Observe evaluates a snapshot, stamps its IsSafe field and makes it
// the latest sample. Returns the stamped snapshot.
func (g *Gate) Observe(s Snapshot) Snapshot {
	s.IsSafe = g.Evaluate(s)
	g.latest.Store(&s)
	return s
}

// Latest returns the most recent snapshot, if any sample has arrived.
func (g *Gate) Latest() (Snapshot, bool) {
	p := g.latest.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// Admit decides whether a new inference dispatch may start. Before the
// first sample arrives the gate admits; with telemetry present it
// refuses while the latest snapshot is unsafe.
func (g *Gate) Admit() error {
	p := g.latest.Load()
	if p == nil {
		return nil
	}
	if !p.IsSafe {
		return errs.ResourceBusy()
	}
	return nil
}

// SampleFunc produces a raw telemetry sample. Collection itself lives
// outside this package; callers plug in whatever their platform
// provides.
type SampleFunc func() (Snapshot, error)

// Logger is the logging dependency of the sampler.
type Logger interface {
	Warn(format string, v ...interface{})
}

// Sampler feeds a gate from a SampleFunc on a fixed interval.
type Sampler struct {
	gate     *Gate
	sample   SampleFunc
	interval time.Duration
	log      Logger
}

// NewSampler creates a sampler. A zero interval defaults to 5 seconds.
func NewSampler(gate *Gate, sample SampleFunc, interval time.Duration, log Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{gate: gate, sample: sample, interval: interval, log: log}
}

// Run samples until ctx is cancelled. Sampling is read-only with
// respect to every other component.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.sample()
			if err != nil {
				s.log.Warn("telemetry sample failed: %v", err)
				continue
			}
			s.gate.Observe(snap)
		}
	}
}

// MemorySample is the built-in fallback sampler, reporting the Go
// runtime's own heap pressure. It sees nothing of the wider machine;
// real deployments plug in a platform collector instead.
func MemorySample() (Snapshot, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var used float64
	if m.Sys > 0 {
		used = float64(m.HeapInuse) / float64(m.Sys) * 100
	}
	return Snapshot{MemoryUsage: used}, nil
}
