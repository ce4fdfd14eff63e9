package timemap

import "sync/atomic"

type Metrics struct {
	Sets        atomic.Uint64
	Hits        atomic.Uint64
	Misses      atomic.Uint64
	Refreshes   atomic.Uint64
	Deletes     atomic.Uint64
	Expirations atomic.Uint64
}

type MetricsSnapshot struct {
	Sets        uint64
	Hits        uint64
	Misses      uint64
	Refreshes   uint64
	Deletes     uint64
	Expirations uint64
	HitRate     float64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.Hits.Load()
	misses := m.Misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		Sets:        m.Sets.Load(),
		Hits:        hits,
		Misses:      misses,
		Refreshes:   m.Refreshes.Load(),
		Deletes:     m.Deletes.Load(),
		Expirations: m.Expirations.Load(),
		HitRate:     hitRate,
	}
}

func (m *Metrics) Reset() {
	m.Sets.Store(0)
	m.Hits.Store(0)
	m.Misses.Store(0)
	m.Refreshes.Store(0)
	m.Deletes.Store(0)
	m.Expirations.Store(0)
}
