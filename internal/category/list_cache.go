package category

import (
	"time"

	"github.com/desacikupa/umkmdesa/internal/cache"

	log "github.com/sirupsen/logrus"
)

const listCacheKey = "kategori:list"

// ListCache holds the rendered public category list. Any change to categories or
// to UMKM category membership must call Invalidate.
type ListCache struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewListCache(c cache.Cache, ttl time.Duration) *ListCache {
	return &ListCache{
		cache: c,
		ttl:   ttl,
	}
}

func (lc *ListCache) Get() ([]byte, bool) {
	if lc == nil || lc.ttl <= 0 {
		return nil, false
	}
	return lc.cache.Get(listCacheKey)
}

func (lc *ListCache) Set(list []byte) {
	if lc == nil || lc.ttl <= 0 {
		return
	}
	if err := lc.cache.Set(listCacheKey, list, lc.ttl); err != nil {
		log.Warnf("category list cache: %s", err)
	}
}

func (lc *ListCache) Invalidate() {
	if lc == nil {
		return
	}
	lc.cache.Del(listCacheKey)
}
