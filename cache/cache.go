package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/skipor/txcache/log"
)

type Config[K comparable, V any] struct {
	// Capacity is max number of entries. Should be positive.
	Capacity int
	// OnEvict is called for every evicted entry, with cache store lock acquired.
	// Callback must not call cache methods.
	OnEvict func(key K, value V)
	// Registry is metrics registry to register cache metrics in.
	// Private registry is used, if nil.
	Registry metrics.Registry
}

// Cache is bounded key-value cache, that evicts least recently written
// entry on overflow, and allows to group writes into transactions.
//
// Transaction owner is context.Context returned from BeginTransaction.
// Calls with that context, or derived from it, are calls of owner: they never
// block on transaction lock. All other mutating calls block while transaction
// is open.
//
// Get and Contains never block on transaction lock and see all writes
// that were completed before, including writes of open transaction.
type Cache[K comparable, V any] struct {
	capacity int
	store    *store[K, V]
	lock     txLock
	log      log.Logger
	metrics  *cacheMetrics
}

func New[K comparable, V any](l log.Logger, conf Config[K, V]) (*Cache[K, V], error) {
	if conf.Capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "capacity should be positive, but %v", conf.Capacity)
	}
	if l == nil {
		l = log.NewNop()
	}
	c := &Cache[K, V]{
		capacity: conf.Capacity,
		log:      l,
		metrics:  newCacheMetrics(conf.Registry),
	}
	onEvict := conf.OnEvict
	c.store = newStore(conf.Capacity, func(key K, value V) {
		c.log.Debugf("Key %v evicted.", key)
		c.metrics.evict.Inc(1)
		if onEvict != nil {
			onEvict(key, value)
		}
	})
	return c, nil
}

// Set puts value to cache, making key most recently written.
// If ctx is not transaction owner, Set waits until no transaction is open.
// Error is returned only if ctx done before wait finished. In such case cache is not changed.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V) error {
	if c.lock.isOwner(ctx) {
		c.put(key, value)
		return nil
	}
	o := c.lock.newOwner()
	err := c.acquire(ctx, o)
	if err != nil {
		return err
	}
	defer c.lock.release(o)
	c.put(key, value)
	return nil
}

// TrySet is Set that does not wait. Returns false if value was not set
// because other owner's transaction is open.
func (c *Cache[K, V]) TrySet(ctx context.Context, key K, value V) bool {
	if c.lock.isOwner(ctx) {
		c.put(key, value)
		return true
	}
	o := c.lock.newOwner()
	if !c.lock.tryAcquire(o) {
		c.log.Debugf("Try set of key %v failed: transaction is open.", key)
		return false
	}
	defer c.lock.release(o)
	c.put(key, value)
	return true
}

// Get returns value and true if key found. Get doesn't change write recency.
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	value, ok = c.store.get(key)
	if ok {
		c.metrics.hit.Inc(1)
	} else {
		c.metrics.miss.Inc(1)
	}
	return
}

func (c *Cache[K, V]) Contains(key K) bool {
	return c.store.contains(key)
}

// BeginTransaction waits until no transaction is open, and opens new one.
// Returned context is transaction owner and should be passed to EndTransaction.
// Transaction that is never ended blocks all other writers forever.
// On error ctx returned as is.
func (c *Cache[K, V]) BeginTransaction(ctx context.Context) (context.Context, error) {
	if c.lock.isOwner(ctx) {
		return ctx, ErrAlreadyInTransaction
	}
	o := c.lock.newOwner()
	err := c.acquire(ctx, o)
	if err != nil {
		return ctx, err
	}
	c.metrics.txBegin.Inc(1)
	c.log.Debugf("Transaction %v begun.", o.id)
	return c.lock.withOwner(ctx, o), nil
}

// EndTransaction ends transaction owned by ctx, and wakes waiting writers.
func (c *Cache[K, V]) EndTransaction(ctx context.Context) error {
	o := c.lock.ownerOf(ctx)
	if !c.lock.release(o) {
		return ErrNotInTransaction
	}
	c.metrics.txEnd.Inc(1)
	c.log.Debugf("Transaction %v ended.", o.id)
	return nil
}

// InTransaction reports whether ctx is owner of open transaction.
func (c *Cache[K, V]) InTransaction(ctx context.Context) bool {
	return c.lock.isOwner(ctx)
}

func (c *Cache[K, V]) Len() int { return c.store.len() }
func (c *Cache[K, V]) Cap() int { return c.capacity }

// Keys returns keys from least to most recently written.
func (c *Cache[K, V]) Keys() []K { return c.store.keys() }

func (c *Cache[K, V]) Registry() metrics.Registry { return c.metrics.registry }

func (c *Cache[K, V]) put(key K, value V) {
	c.store.put(key, value)
	c.metrics.set.Inc(1)
}

func (c *Cache[K, V]) acquire(ctx context.Context, o *owner) error {
	start := time.Now()
	err := c.lock.acquire(ctx, o)
	c.metrics.lockWait.UpdateSince(start)
	if err != nil {
		c.log.Debugf("Lock wait interrupted: %v", err)
	}
	return err
}
