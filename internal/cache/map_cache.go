package cache

import (
	"sync"
	"time"
)

var _ Cache = (*MapCache)(nil)

// MapCache keeps entries until cleared; TTLs are ignored.
type MapCache struct {
	cache map[string][]byte
	mutex sync.Mutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		cache: make(map[string][]byte),
	}
}

func (mc *MapCache) Get(key string) ([]byte, bool) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if val, ok := mc.cache[key]; ok {
		return val, true
	}
	return nil, false
}

func (mc *MapCache) Set(key string, value []byte, _ time.Duration) bool {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.cache[key] = value
	return true
}

func (mc *MapCache) Clear() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	mc.cache = make(map[string][]byte)
}

// Len returns the number of cached entries.
func (mc *MapCache) Len() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return len(mc.cache)
}
