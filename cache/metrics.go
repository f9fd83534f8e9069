package cache

import (
	"github.com/rcrowley/go-metrics"
)

const (
	SetMetric      = "cache.set"
	HitMetric      = "cache.hit"
	MissMetric     = "cache.miss"
	EvictMetric    = "cache.evict"
	TxBeginMetric  = "cache.tx.begin"
	TxEndMetric    = "cache.tx.end"
	LockWaitMetric = "cache.lock.wait"
)

type cacheMetrics struct {
	registry metrics.Registry
	set      metrics.Counter
	hit      metrics.Counter
	miss     metrics.Counter
	evict    metrics.Counter
	txBegin  metrics.Counter
	txEnd    metrics.Counter
	// lockWait is time that not owner waited for lock.
	lockWait metrics.Timer
}

func newCacheMetrics(r metrics.Registry) *cacheMetrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &cacheMetrics{
		registry: r,
		set:      metrics.GetOrRegisterCounter(SetMetric, r),
		hit:      metrics.GetOrRegisterCounter(HitMetric, r),
		miss:     metrics.GetOrRegisterCounter(MissMetric, r),
		evict:    metrics.GetOrRegisterCounter(EvictMetric, r),
		txBegin:  metrics.GetOrRegisterCounter(TxBeginMetric, r),
		txEnd:    metrics.GetOrRegisterCounter(TxEndMetric, r),
		lockWait: metrics.GetOrRegisterTimer(LockWaitMetric, r),
	}
}
