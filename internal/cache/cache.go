package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

//go:generate mockgen -source internal/cache/cache.go -destination=internal/cache/cache_mock_test.go -package=cache

type repo interface {
	GetDocument(ctx context.Context, cid string) ([]byte, error)
	RecentDocumentCIDs(ctx context.Context, limit int) ([]string, error)
}

// Cache holds raw JSON documents keyed by CID, bounded by count and per-entry age.
type Cache struct {
	size int
	lru  *expirable.LRU[string, []byte]
}

func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	return &Cache{
		size: size,
		lru:  expirable.NewLRU[string, []byte](size, nil, ttl),
	}, nil
}

func (c *Cache) Warm(ctx context.Context, repo repo) {
	if cids, err := repo.RecentDocumentCIDs(ctx, c.size); err == nil {
		for _, cid := range cids {
			if body, err := repo.GetDocument(ctx, cid); err == nil {
				c.Set(cid, body)
			}
		}
	}
}

func (c *Cache) Get(cid string) ([]byte, bool) {
	return c.lru.Get(cid)
}

func (c *Cache) Set(cid string, body []byte) {
	c.lru.Add(cid, append([]byte(nil), body...))
}

func (c *Cache) Len() int { return c.lru.Len() }
