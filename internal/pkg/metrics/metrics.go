// Package metrics exports the StatsFrame counters via Prometheus, the
// optional ambient observability surface SPEC_FULL.md §1/§6 adds on top of
// the wire protocol. It participates in no wire-format decision; absence
// of --metrics-addr changes no behavior, grounded on the teacher's
// internal/pkg/voip/monitoring/prometheus.go.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dnsflow/internal/pkg/logger"
	"dnsflow/internal/pkg/pcapsource"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes capture counters and sequence/set gauges for one
// worker.
type Exporter struct {
	registry *prometheus.Registry
	server   *http.Server

	captured   prometheus.Gauge
	received   prometheus.Gauge
	dropped    prometheus.Gauge
	ifdropped  prometheus.Gauge
	sampleRate prometheus.Gauge
	setsSent   prometheus.Counter
	sequence   prometheus.Gauge
}

// New builds an Exporter labeled with the worker index.
func New(workerIndex int) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"worker": fmt.Sprintf("%d", workerIndex)}
	e := &Exporter{
		registry: registry,
		captured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_packets_captured", Help: "Packets captured by the capture collaborator.", ConstLabels: labels}),
		received: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_packets_received", Help: "Packets received by the installed filter.", ConstLabels: labels}),
		dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_packets_dropped", Help: "Packets dropped by the kernel.", ConstLabels: labels}),
		ifdropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_packets_ifdropped", Help: "Packets dropped by the interface.", ConstLabels: labels}),
		sampleRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_sample_rate", Help: "Configured capture sample rate.", ConstLabels: labels}),
		setsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnsflow_sets_emitted_total", Help: "FlowSets appended to the outgoing flow batch.", ConstLabels: labels}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsflow_sequence_number", Help: "Most recently emitted sequence number.", ConstLabels: labels}),
	}
	registry.MustRegister(e.captured, e.received, e.dropped, e.ifdropped, e.sampleRate, e.setsSent, e.sequence)
	return e
}

// Observe updates the capture-counter gauges from a Stats snapshot.
func (e *Exporter) Observe(s pcapsource.Stats) {
	e.captured.Set(float64(s.Captured))
	e.received.Set(float64(s.Received))
	e.dropped.Set(float64(s.Dropped))
	e.ifdropped.Set(float64(s.IfDropped))
	e.sampleRate.Set(float64(s.SampleRate))
}

// AddSetsEmitted increments the sets-emitted counter by n.
func (e *Exporter) AddSetsEmitted(n int) {
	e.setsSent.Add(float64(n))
}

// SetSequence records the most recently emitted sequence number.
func (e *Exporter) SetSequence(seq uint32) {
	e.sequence.Set(float64(seq))
}

// Serve starts the /metrics HTTP endpoint on addr. It runs until ctx is
// canceled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
