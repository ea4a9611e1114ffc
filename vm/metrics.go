package vm

import (
	"sort"
	"sync"
	"time"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

type KindMetrics struct {
	Kind string `json:"kind"`

	Verified uint64 `json:"verified"`
	Rejected uint64 `json:"rejected"`
	ExecUs   uint64 `json:"exec_us"`

	LastError string `json:"last_error,omitempty"`
}

type MetricsSummary struct {
	TotalBatches        uint64 `json:"total_batches"`
	AcceptedBatches     uint64 `json:"accepted_batches"`
	RejectedBatches     uint64 `json:"rejected_batches"`
	TotalSpends         uint64 `json:"total_spends"`
	Attestations        uint64 `json:"attestations"`
	AttestationErrors   uint64 `json:"attestation_errors"`
	SkippedAttestations uint64 `json:"skipped_attestations"`
}

type MetricsSnapshot struct {
	GeneratedAtMs int64          `json:"generated_at_ms"`
	Summary       MetricsSummary `json:"summary"`
	Kinds         []KindMetrics  `json:"kinds,omitempty"`
}

type metricsCollector struct {
	mu      sync.Mutex
	kinds   map[uint8]*KindMetrics
	summary MetricsSummary
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{kinds: make(map[uint8]*KindMetrics)}
}

func (c *metricsCollector) kindLocked(kind uint8) *KindMetrics {
	if k, ok := c.kinds[kind]; ok {
		return k
	}
	k := &KindMetrics{Kind: consts.KindName(kind)}
	c.kinds[kind] = k
	return k
}

func (c *metricsCollector) recordSpend(kind uint8, exec time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.kindLocked(kind)
	if exec > 0 {
		k.ExecUs += uint64(exec.Microseconds())
	}
	c.summary.TotalSpends++
	if err != nil {
		k.Rejected++
		k.LastError = err.Error()
		return
	}
	k.Verified++
}

func (c *metricsCollector) recordBatch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary.TotalBatches++
	if err != nil {
		c.summary.RejectedBatches++
		return
	}
	c.summary.AcceptedBatches++
}

func (c *metricsCollector) recordAttestation(skipped bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err != nil:
		c.summary.AttestationErrors++
	case skipped:
		c.summary.SkippedAttestations++
	default:
		c.summary.Attestations++
	}
}

func (c *metricsCollector) snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		GeneratedAtMs: time.Now().UnixMilli(),
		Summary:       c.summary,
		Kinds:         make([]KindMetrics, 0, len(c.kinds)),
	}
	for _, k := range c.kinds {
		snap.Kinds = append(snap.Kinds, *k)
	}
	sort.Slice(snap.Kinds, func(i, j int) bool { return snap.Kinds[i].Kind < snap.Kinds[j].Kind })
	return snap
}
