package cache

import (
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

var _ Cache = (*FreeCache)(nil)

type FreeCache struct {
	mainCache *freecache.Cache
}

func NewFreeCache(sizeMB int) *FreeCache {
	megabyte := 1024 * 1024
	return &FreeCache{
		mainCache: freecache.NewCache(sizeMB * megabyte),
	}
}

func (fc *FreeCache) Get(key string) ([]byte, bool) {
	value, err := fc.mainCache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return value, true
}

func (fc *FreeCache) Set(key string, value []byte, ttl time.Duration) bool {
	if err := fc.mainCache.Set([]byte(key), value, int(ttl.Seconds())); err != nil {
		log.Errorf("free cache, set %s: %s", key, err)
		return false
	}
	return true
}

func (fc *FreeCache) Clear() {
	fc.mainCache.Clear()
}
