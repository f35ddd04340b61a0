// Package worker implements the scheduler (C8) and the per-worker state
// object the design notes call for: a Worker ties the capture source, the
// C1-C4 packet pipeline, the flow-packet builder (C5), and the emitter
// (C6) together for one process, with no state shared across workers.
package worker

import (
	"time"

	"dnsflow/internal/pkg/dnsflow"
	"dnsflow/internal/pkg/emitter"
	"dnsflow/internal/pkg/encap"
	"dnsflow/internal/pkg/flowpacket"
	"dnsflow/internal/pkg/logger"
	"dnsflow/internal/pkg/metrics"
	"dnsflow/internal/pkg/pcapsource"
)

// Config collects everything one worker needs to run independently.
type Config struct {
	// Index and NWorkers are 1-based; used only for logging here — the
	// shard decision already happened in the packet filter (C7).
	Index, NWorkers int

	Source   pcapsource.Source
	Emitter  *emitter.Emitter
	Stripper encap.Stripper

	// IsChild marks a worker spawned by the auto-fork supervisor (C9),
	// as opposed to one manually assigned a shard via -m. Only IsChild
	// workers run the parent-death watchdog (spec.md §4.8).
	IsChild bool

	// Metrics is optional; when set, capture counters and sequence/set
	// gauges are published alongside the wire protocol (SPEC_FULL.md's
	// ambient Prometheus exporter).
	Metrics *metrics.Exporter
}

// Worker owns one process's confined state: its FlowBatch, sequence
// counter, and capture source. Nothing here is touched by any other
// worker.
type Worker struct {
	cfg     Config
	builder *flowpacket.Builder
}

// New constructs a Worker. The builder is created once and reused for the
// worker's lifetime (FlowBatch's lifecycle in the data model).
func New(cfg Config) *Worker {
	return &Worker{
		cfg:     cfg,
		builder: flowpacket.NewBuilder(cfg.Emitter),
	}
}

// handlePacket runs C1 (via dnsflow.Process, which chains C1-C4) and, on a
// qualifying response, appends it to the batch (C5). Any drop is silent
// except a DNS decode failure, which is DNSDecodeWarn.
func (w *Worker) handlePacket(_ time.Time, _ int, ipBytes []byte) {
	clientIP, rec, ok, decodeErr := dnsflow.Process(ipBytes, w.cfg.Stripper)
	if decodeErr != nil {
		logger.Warn("dns decode failed", "worker", w.cfg.Index, "error", decodeErr)
		return
	}
	if !ok {
		return
	}

	if _, err := w.builder.Append(clientIP, rec); err != nil {
		logger.Warn("flow builder error", "worker", w.cfg.Index, "error", err)
		return
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.AddSetsEmitted(1)
		w.cfg.Metrics.SetSequence(w.builder.Sequence() - 1)
	}
}

// printStats logs the human-readable capture counters (spec.md §4.8's
// once-a-minute print).
func (w *Worker) printStats(s pcapsource.Stats) {
	logger.Info("capture stats",
		"worker", w.cfg.Index,
		"captured", s.Captured,
		"received", s.Received,
		"dropped", s.Dropped,
		"ifdropped", s.IfDropped,
	)
}

// emitStats builds and sends a StatsFrame from the current capture
// counters (C10).
func (w *Worker) emitStats() {
	s, err := w.cfg.Source.Stats()
	if err != nil {
		logger.Warn("stats read failed", "worker", w.cfg.Index, "error", err)
		return
	}
	if err := w.builder.EmitStats(flowpacket.Counters{
		Captured:   s.Captured,
		Received:   s.Received,
		Dropped:    s.Dropped,
		IfDropped:  s.IfDropped,
		SampleRate: s.SampleRate,
	}); err != nil {
		logger.Warn("stats emit failed", "worker", w.cfg.Index, "error", err)
		return
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.Observe(s)
		w.cfg.Metrics.SetSequence(w.builder.Sequence() - 1)
	}
}

// FinalStats returns the last capture snapshot for clean-exit logging
// (spec.md §4.8's "print final stats" shutdown step).
func (w *Worker) FinalStats() (pcapsource.Stats, error) {
	return w.cfg.Source.Stats()
}
