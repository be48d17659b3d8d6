package engine

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) FetchStarted()                      {}
func (NoopMetrics) FetchDone(Outcome, time.Duration)   {}
func (NoopMetrics) Evict(EvictReason)                  {}
func (NoopMetrics) Size(entries int, bytes int64)      {}
func (NoopMetrics) Queue(pending, inflight, limit int) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
