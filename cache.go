package txcache

import (
	"context"

	"github.com/skipor/txcache/cache"
)

// Item is value stored by server.
type Item struct {
	Flags uint32
	Data  []byte
}

// Cache is part of cache.Cache API that server uses.
// Context passed to Cache methods is connection transaction owner.
type Cache interface {
	Set(ctx context.Context, key string, i Item) error
	Get(key string) (i Item, ok bool)
	Contains(key string) bool
	BeginTransaction(ctx context.Context) (context.Context, error)
	EndTransaction(ctx context.Context) error
}

var _ Cache = (*cache.Cache[string, Item])(nil)
