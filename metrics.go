//go:build linux

package reactor

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

type stats struct {
	set        *metrics.Set
	accepted   *metrics.Counter
	connected  *metrics.Counter
	dispatched *metrics.Counter
	busy       *metrics.Counter
	unmatched  *metrics.Counter
	terminated *metrics.Counter
	failures   *metrics.Counter
	pulses     *metrics.Counter
}

func newStats(r *Reactor) *stats {
	s := metrics.NewSet()
	st := &stats{
		set:        s,
		accepted:   s.NewCounter("reactor_accepted_total"),
		connected:  s.NewCounter("reactor_connected_total"),
		dispatched: s.NewCounter("reactor_dispatched_total"),
		busy:       s.NewCounter("reactor_busy_skipped_total"),
		unmatched:  s.NewCounter("reactor_unmatched_total"),
		terminated: s.NewCounter("reactor_terminated_total"),
		failures:   s.NewCounter("reactor_protocol_failures_total"),
		pulses:     s.NewCounter("reactor_pulses_total"),
	}
	s.NewGauge("reactor_instances_live", func() float64 { return float64(r.Count()) })
	s.NewGauge("reactor_queue_depth", func() float64 { return float64(r.queueDepth()) })
	return st
}

// WritePrometheus 以 Prometheus 文本格式输出计数器。
func (r *Reactor) WritePrometheus(w io.Writer) {
	r.stats.set.WritePrometheus(w)
}
